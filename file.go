package eeprom

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const WriteBlockSize = 256
const WriteMaxRetryCount = 5

// 一段待写入的数据
type writeBlock struct {
	addr uint16
	data []byte
}

/*
 * @Description: 将 .bin 或 .hex 文件写入 EEPROM，整个文件共享 WriteMaxRetryCount 次重试
 * @param addr 起始地址（.hex 中的偏移相对于此地址）
 * @param path
 * @param verify 每块写入后读回校验
 * @param progress 进度回调（百分比），可为空
 * @return error
 */
func (t *EEPROM) WriteFile(addr uint16, path string, verify bool, progress func(float64)) error {
	var blocks []writeBlock
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".hex", ".ihex", ".ihx":
		blocks, err = readHexBlocks(addr, path)
	case ".bin", ".eep":
		blocks, err = readBinBlocks(addr, path)
	default:
		return fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
	if err != nil {
		return err
	}
	if progress == nil {
		progress = func(float64) {}
	}

	retryCount := 0
	for index, block := range blocks {
		progress(float64(index) / float64(len(blocks)) * 100.0)
		for {
			err = t.WriteMemory(block.addr, block.data, verify)
			if err == nil {
				break
			}
			if !retryable(err) {
				return fmt.Errorf("write addr 0x%04X fail err:%w", block.addr, err)
			}
			retryCount++
			t.logerr("eeprom:write-file", slog.Uint64("addr", uint64(block.addr)),
				slog.Int("retry", retryCount), slog.String("err", err.Error()))
			if retryCount >= WriteMaxRetryCount {
				return fmt.Errorf("write addr 0x%04X fail err:%w", block.addr, err)
			}
		}
	}
	progress(100.0)
	return nil
}

// 保护、越界和配置错误重试也不会成功
func retryable(err error) bool {
	return !errors.Is(err, ErrProtected) && !errors.Is(err, ErrOutOfRange) && !errors.Is(err, ErrConfig)
}

func readBinBlocks(addr uint16, path string) ([]writeBlock, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if int(addr)+len(data) > 0x10000 {
		return nil, fmt.Errorf("%w: %s is %d bytes at 0x%04X", ErrOutOfRange, path, len(data), addr)
	}
	var blocks []writeBlock
	for offset := 0; offset < len(data); offset += WriteBlockSize {
		end := min(offset+WriteBlockSize, len(data))
		blocks = append(blocks, writeBlock{addr: addr + uint16(offset), data: data[offset:end]})
	}
	return blocks, nil
}

func readHexBlocks(addr uint16, path string) ([]writeBlock, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var blocks []writeBlock
	var base uint64
	scanner := bufio.NewScanner(f)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		rec, ok, err := parseHexRecord(scanner.Text())
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		if !ok {
			continue
		}
		switch rec.Type {
		case hexRecordEOF:
			return blocks, nil
		case hexRecordExtLinear, hexRecordExtSegment:
			if len(rec.Data) != 2 {
				return nil, fmt.Errorf("%s:%d: bad extended address record", path, lineNo)
			}
			value := uint64(rec.Data[0])<<8 | uint64(rec.Data[1])
			if rec.Type == hexRecordExtLinear {
				// 16 位地址空间，高 16 位只能为 0
				if value != 0 {
					return nil, fmt.Errorf("%s:%d: %w: upper address 0x%04X", path, lineNo, ErrOutOfRange, value)
				}
				base = 0
			} else {
				base = value << 4
			}
		case hexRecordData:
			target := uint64(addr) + base + uint64(rec.Offset)
			if target+uint64(len(rec.Data)) > 0x10000 {
				return nil, fmt.Errorf("%s:%d: %w: 0x%X", path, lineNo, ErrOutOfRange, target)
			}
			blocks = append(blocks, writeBlock{addr: uint16(target), data: rec.Data})
		}
	}
	if err = scanner.Err(); err != nil {
		return nil, err
	}
	return blocks, nil
}

/*
 * @Description: 将 EEPROM 内容读出并写入文件
 * @param addr
 * @param size
 * @param path
 * @return error
 */
func (t *EEPROM) ReadFile(addr uint16, size int, path string) error {
	data, err := t.ReadMemory(addr, size)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
