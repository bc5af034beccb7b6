package cache

import (
	"bytes"
	"fmt"
	"time"
)

const signaturePrefix = "\n<!-- static-hub: cached "

// Signature 生成追加在页面末尾的诊断签名（时间 + 设备分类）。
func Signature(at time.Time, deviceClass string) []byte {
	return []byte(fmt.Sprintf("%s%s (%s) -->", signaturePrefix, at.UTC().Format("2006-01-02 15:04:05 MST"), deviceClass))
}

// AppendSignature 返回 payload + 签名的新切片，不修改 payload。
func AppendSignature(payload []byte, at time.Time, deviceClass string) []byte {
	sig := Signature(at, deviceClass)
	out := make([]byte, 0, len(payload)+len(sig))
	out = append(out, payload...)
	return append(out, sig...)
}

// StripSignature 去掉末尾的诊断签名；没有签名时原样返回。
func StripSignature(data []byte) []byte {
	idx := bytes.LastIndex(data, []byte(signaturePrefix))
	if idx < 0 {
		return data
	}
	if !bytes.HasSuffix(data, []byte("-->")) {
		return data
	}
	return data[:idx]
}
