package eeprom

import (
	"bytes"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// Config 器件参数，仅 WriteMemory/ReadMemory 等高层操作使用
type Config struct {
	Size      int           // 容量（字节）
	PageSize  int           // 页大小，必须是 2 的幂
	WriteTime time.Duration // 最大写周期 tWC
}

// Microchip 25xx 系列，16 位地址
var (
	Conf25LC080A = Config{Size: 1024, PageSize: 16, WriteTime: 5 * time.Millisecond}
	Conf25LC080B = Config{Size: 1024, PageSize: 32, WriteTime: 5 * time.Millisecond}
	Conf25LC160A = Config{Size: 2048, PageSize: 16, WriteTime: 5 * time.Millisecond}
	Conf25LC160B = Config{Size: 2048, PageSize: 32, WriteTime: 5 * time.Millisecond}
	Conf25LC320  = Config{Size: 4096, PageSize: 32, WriteTime: 5 * time.Millisecond}
	Conf25LC640  = Config{Size: 8192, PageSize: 32, WriteTime: 5 * time.Millisecond}
	Conf25LC128  = Config{Size: 16384, PageSize: 64, WriteTime: 5 * time.Millisecond}
	Conf25LC256  = Config{Size: 32768, PageSize: 64, WriteTime: 5 * time.Millisecond}
	Conf25LC512  = Config{Size: 65536, PageSize: 128, WriteTime: 5 * time.Millisecond}
)

var knownConfigs = map[string]Config{
	"25lc080a": Conf25LC080A,
	"25lc080b": Conf25LC080B,
	"25lc160a": Conf25LC160A,
	"25lc160b": Conf25LC160B,
	"25lc320":  Conf25LC320,
	"25lc640":  Conf25LC640,
	"25lc128":  Conf25LC128,
	"25lc256":  Conf25LC256,
	"25lc512":  Conf25LC512,
}

// LookupConfig 按型号查找参数，25AA 与 25LC 同参数
func LookupConfig(part string) (Config, bool) {
	part = strings.ToLower(part)
	part = strings.Replace(part, "25aa", "25lc", 1)
	conf, ok := knownConfigs[part]
	return conf, ok
}

// ConfigNames 已知型号
func ConfigNames() []string {
	names := make([]string, 0, len(knownConfigs))
	for name := range knownConfigs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c Config) check(addr uint16, size int) error {
	if c.Size <= 0 || c.PageSize <= 0 || c.PageSize&(c.PageSize-1) != 0 {
		return fmt.Errorf("%w: size %d page %d", ErrConfig, c.Size, c.PageSize)
	}
	if size < 0 || int(addr)+size > c.Size {
		return fmt.Errorf("%w: 0x%04X+%d exceeds %d bytes", ErrOutOfRange, addr, size, c.Size)
	}
	return nil
}

// 高层写操作的等待上限：10 倍 tWC，未配置时不限制
func (c Config) writeLimit() Limit {
	if c.WriteTime <= 0 {
		return Limit{}
	}
	return Limit{Timeout: 10 * c.WriteTime}
}

/*
 * @Description: 按页拆分写入，每页前写使能、写后等待完成
 * @param addr 起始地址
 * @param data 写入数据
 * @param verify 写完后读回比较
 * @return error
 */
func (t *EEPROM) WriteMemory(addr uint16, data []byte, verify bool) error {
	if err := t.Config.check(addr, len(data)); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	status, err := t.ReadStatus()
	if err != nil {
		return err
	}
	start, end := status.BlockProtection().Range(t.Config.Size)
	if int(addr) < end && int(addr)+len(data) > start {
		return fmt.Errorf("%w: 0x%04X+%d overlaps [0x%04X, 0x%04X) (%s)",
			ErrProtected, addr, len(data), start, end, status.BlockProtection())
	}

	limit := t.Config.writeLimit()
	pageAddr, remaining := addr, data
	for len(remaining) > 0 {
		// 本页剩余空间
		n := t.Config.PageSize - int(pageAddr)%t.Config.PageSize
		if n > len(remaining) {
			n = len(remaining)
		}
		if err = t.EnableWrite(); err != nil {
			return err
		}
		if err = t.WriteRange(pageAddr, remaining[:n]); err != nil {
			return err
		}
		if err = t.WaitLimit(limit); err != nil {
			return err
		}
		t.debug("eeprom:page", slog.Uint64("addr", uint64(pageAddr)), slog.Int("len", n))
		pageAddr += uint16(n)
		remaining = remaining[n:]
	}

	if verify {
		memory, err := t.ReadMemory(addr, len(data))
		if err != nil {
			return err
		}
		if !bytes.Equal(data, memory) {
			return fmt.Errorf("%w at 0x%04X+%d", ErrVerify, addr, len(data))
		}
	}
	return nil
}

/*
 * @Description: 读取一段存储器
 * @param addr 数据地址
 * @param size 读取尺寸
 * @return data 数据
 * @return err
 */
func (t *EEPROM) ReadMemory(addr uint16, size int) ([]byte, error) {
	if err := t.Config.check(addr, size); err != nil {
		return nil, err
	}
	data := make([]byte, size)
	if err := t.ReadRange(addr, data); err != nil {
		return nil, err
	}
	return data, nil
}

/*
 * @Description: 修改块保护等级，保留 WPEN 位
 * @param bp
 * @return error
 */
func (t *EEPROM) SetBlockProtection(bp BlockProtection) error {
	status, err := t.ReadStatus()
	if err != nil {
		return err
	}
	value := status.WithBlockProtection(bp) &^ (StatusRDY | StatusWEN)
	if err = t.EnableWrite(); err != nil {
		return err
	}
	if err = t.WriteStatus(value); err != nil {
		return err
	}
	return t.WaitLimit(t.Config.writeLimit())
}

/*
 * @Description: 整片填充为 value
 * @param value 通常为 0xFF
 * @return error
 */
func (t *EEPROM) Erase(value byte) error {
	if t.Config.Size <= 0 {
		return fmt.Errorf("%w: size %d", ErrConfig, t.Config.Size)
	}
	return t.WriteMemory(0, bytes.Repeat([]byte{value}, t.Config.Size), false)
}
