package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/makerbot/gomaker/pkg/logger"
)

// ErrNotExists 表示数据不存在
var ErrNotExists = fmt.Errorf("persistence data not exists")

// Store 存储接口
type Store interface {
	Save(data interface{}) error
	Load(data interface{}) error
}

// JSONFileService 基于 JSON 文件的持久化服务。
// 用于保存控制器计数器等需要跨重启保留的小块状态。
type JSONFileService struct {
	baseDir string
}

// NewJSONFileService 创建 JSON 文件持久化服务
func NewJSONFileService(baseDir string) *JSONFileService {
	return &JSONFileService{baseDir: baseDir}
}

// NewStore 创建新的存储，key 形如 "maker:BTC-USDT:counters"
func (s *JSONFileService) NewStore(prefix, id, tag string) Store {
	return &jsonFileStore{
		baseDir: s.baseDir,
		key:     fmt.Sprintf("%s:%s:%s", prefix, id, tag),
	}
}

type jsonFileStore struct {
	baseDir string
	key     string
}

var keySanitizer = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func (s *jsonFileStore) filePath() string {
	safe := keySanitizer.ReplaceAllString(s.key, "_")
	return filepath.Join(s.baseDir, safe+".json")
}

// Save 序列化并写入（先写临时文件再原子替换）
func (s *jsonFileStore) Save(data interface{}) error {
	if err := os.MkdirAll(s.baseDir, 0755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.filePath() + ".tmp"
	if err := os.WriteFile(tmp, b, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.filePath())
}

// Load 读取并反序列化到 data
func (s *jsonFileStore) Load(data interface{}) error {
	b, err := os.ReadFile(s.filePath())
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotExists
		}
		return err
	}
	if err := json.Unmarshal(b, data); err != nil {
		logger.Warnf("持久化数据损坏 (%s): %v", s.filePath(), err)
		return ErrNotExists
	}
	return nil
}
