// keystore-init 把 Ed25519 签名私钥写入 badger secret store。
// 不带 -key 时生成一把新钥匙并打印公钥，用于在交易所侧注册。
package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/makerbot/gomaker/pkg/secretstore"
)

func main() {
	var (
		dbPath    = flag.String("badger", getenv("MAKER_SECRET_DB", "data/secrets.badger"), "badger secrets db 路径")
		secretKey = flag.String("secret-key", getenv("MAKER_SECRET_KEY", ""), "badger 加密 key（16/24/32 字节，hex/base64）")
		signKey   = flag.String("key", "", "要导入的 Ed25519 私钥（hex/base64，32 字节 seed 或 64 字节私钥）；为空则生成新钥匙")
	)
	flag.Parse()

	encKey, err := secretstore.ParseKey(*secretKey)
	if err != nil {
		fatal(err)
	}
	if encKey == nil {
		fatal(fmt.Errorf("必须提供加密 key：设置 MAKER_SECRET_KEY 或传 -secret-key"))
	}

	var priv ed25519.PrivateKey
	if *signKey != "" {
		priv, err = secretstore.DecodeSigningKey(*signKey)
		if err != nil {
			fatal(err)
		}
	} else {
		_, priv, err = ed25519.GenerateKey(rand.Reader)
		if err != nil {
			fatal(err)
		}
		fmt.Fprintln(os.Stderr, "已生成新的 Ed25519 钥匙")
	}

	ss, err := secretstore.Open(secretstore.OpenOptions{
		Path:          *dbPath,
		EncryptionKey: encKey,
		ReadOnly:      false,
	})
	if err != nil {
		fatal(err)
	}
	defer ss.Close()

	seed := priv.Seed()
	if err := ss.Set(secretstore.KeySigningSeed, []byte(hex.EncodeToString(seed))); err != nil {
		fatal(err)
	}

	pub := priv.Public().(ed25519.PublicKey)
	fmt.Fprintf(os.Stderr, "签名私钥已写入 %s\n", *dbPath)
	fmt.Printf("公钥（在交易所侧注册）: %s\n", base64.StdEncoding.EncodeToString(pub))
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(1)
}
