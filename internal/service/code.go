package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// generateCode 生成 6 位数字验证码，范围 100000–999999。
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
