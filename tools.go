package eeprom

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Intel HEX 记录类型
const (
	hexRecordData        = 0x00
	hexRecordEOF         = 0x01
	hexRecordExtLinear   = 0x04
	hexRecordExtSegment  = 0x02
	hexRecordMinimumSize = 5 // 长度 + 地址(2) + 类型 + 校验
)

var errHexChecksum = errors.New("hex record checksum mismatch")

// addressBytes 大端拆分地址
func addressBytes(addr uint16) (hi, lo byte) {
	return byte(addr >> 8), byte(addr & 0xFF)
}

// checkSum Intel HEX 校验：所有字节之和的补码
func checkSum(data []byte) byte {
	result := byte(0)
	for index := 0; index < len(data); index++ {
		result += data[index]
	}
	return -result
}

func hexCharToBytes(hexStr string) ([]byte, error) {
	if len(hexStr)%2 != 0 {
		return nil, fmt.Errorf("hex string length must be even")
	}

	bytes := make([]byte, len(hexStr)/2)
	for i := 0; i < len(hexStr); i += 2 {
		val, err := strconv.ParseUint(hexStr[i:i+2], 16, 8)
		if err != nil {
			return nil, err
		}
		bytes[i/2] = byte(val)
	}
	return bytes, nil
}

// hexRecord 一行 Intel HEX
type hexRecord struct {
	Type   byte
	Offset uint16
	Data   []byte
}

/*
 * @Description: 解析一行 Intel HEX，例如 ":10000000284801205D030008A1010008A3010008A1"
 * @param line
 * @return hexRecord
 * @return ok 非记录行（空行、注释）时为 false
 * @return err
 */
func parseHexRecord(line string) (rec hexRecord, ok bool, err error) {
	line = strings.TrimSpace(line)
	if len(line) == 0 || line[0] != ':' {
		return rec, false, nil
	}
	raw, err := hexCharToBytes(line[1:])
	if err != nil {
		return rec, false, err
	}
	if len(raw) < hexRecordMinimumSize {
		return rec, false, fmt.Errorf("hex record too short: %q", line)
	}
	dataLen := int(raw[0])
	if len(raw) != dataLen+hexRecordMinimumSize {
		return rec, false, fmt.Errorf("hex record length %d does not match data length %d", len(raw), dataLen)
	}
	if checkSum(raw[:len(raw)-1]) != raw[len(raw)-1] {
		return rec, false, errHexChecksum
	}
	rec.Offset = uint16(raw[1])<<8 | uint16(raw[2])
	rec.Type = raw[3]
	rec.Data = raw[4 : 4+dataLen]
	return rec, true, nil
}
