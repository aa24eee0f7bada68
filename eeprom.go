package eeprom

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	ErrBusy       = errors.New("eeprom busy")
	ErrVerify     = errors.New("verify fail data writing")
	ErrOutOfRange = errors.New("address out of range")
	ErrProtected  = errors.New("address block protected")
	ErrConfig     = errors.New("invalid eeprom config")
)

// 默认轮询间隔
const DefaultPollInterval = time.Microsecond

// EEPROM 25xx 系列 SPI EEPROM 驱动，不加锁，调用方自行串行化
type EEPROM struct {
	SPI    Exchanger
	CS     ChipSelect
	Config Config

	// Sleep 为空时使用 time.Sleep
	Sleep func(time.Duration)
	// PollInterval 为 0 时使用 DefaultPollInterval
	PollInterval time.Duration
	Logger       *slog.Logger
}

type Command byte

const (
	CommandWriteStatus  Command = 0x01 // 写状态寄存器
	CommandWrite        Command = 0x02 // 写存储阵列
	CommandRead         Command = 0x03 // 读存储阵列
	CommandWriteDisable Command = 0x04 // 清除写使能锁存
	CommandReadStatus   Command = 0x05 // 读状态寄存器
	CommandWriteEnable  Command = 0x06 // 置位写使能锁存
)

func (c Command) String() string {
	switch c {
	case CommandWriteStatus:
		return "WRSR"
	case CommandWrite:
		return "WRITE"
	case CommandRead:
		return "READ"
	case CommandWriteDisable:
		return "WRDI"
	case CommandReadStatus:
		return "RDSR"
	case CommandWriteEnable:
		return "WREN"
	}
	return fmt.Sprintf("Command(0x%02X)", byte(c))
}

// New 使用给定的传输与片选创建驱动
func New(spi Exchanger, cs ChipSelect, conf Config) *EEPROM {
	return &EEPROM{SPI: spi, CS: cs, Config: conf}
}

/*
 * @Description: 置位写使能锁存，每次写操作前都需要调用
 * @return error
 */
func (t *EEPROM) EnableWrite() error {
	return t.transact(CommandWriteEnable, func() error {
		return t.send(byte(CommandWriteEnable))
	})
}

/*
 * @Description: 清除写使能锁存
 * @return error
 */
func (t *EEPROM) DisableWrite() error {
	return t.transact(CommandWriteDisable, func() error {
		return t.send(byte(CommandWriteDisable))
	})
}

/*
 * @Description: 读状态寄存器
 * @return Status
 * @return error
 */
func (t *EEPROM) ReadStatus() (Status, error) {
	var buf [1]byte
	err := t.transact(CommandReadStatus, func() error {
		if err := t.send(byte(CommandReadStatus)); err != nil {
			return err
		}
		return t.receive(buf[:])
	})
	return Status(buf[0]), err
}

/*
 * @Description: 写状态寄存器，value 原样发送，不做保留位屏蔽
 * @param value
 * @return error
 */
func (t *EEPROM) WriteStatus(value Status) error {
	t.debug("eeprom:wrsr", slog.String("status", value.String()))
	return t.transact(CommandWriteStatus, func() error {
		return t.send(byte(CommandWriteStatus), byte(value))
	})
}

/*
 * @Description: 读单个字节
 * @param addr 地址，不做范围检查
 * @return byte
 * @return error
 */
func (t *EEPROM) ReadByteAt(addr uint16) (byte, error) {
	var buf [1]byte
	err := t.ReadRange(addr, buf[:])
	return buf[0], err
}

/*
 * @Description: 写单个字节，不等待写周期完成，调用方需随后 Wait
 * @param addr
 * @param value
 * @return error
 */
func (t *EEPROM) WriteByteAt(addr uint16, value byte) error {
	hi, lo := addressBytes(addr)
	return t.transact(CommandWrite, func() error {
		return t.send(byte(CommandWrite), hi, lo, value)
	})
}

/*
 * @Description: 单次事务连续读取 len(dst) 个字节，器件内部地址自增；len(dst)==0 时仍发送命令与地址
 * @param addr 起始地址
 * @param dst 目标缓冲区
 * @return error
 */
func (t *EEPROM) ReadRange(addr uint16, dst []byte) error {
	hi, lo := addressBytes(addr)
	t.trace("eeprom:read", slog.Uint64("addr", uint64(addr)), slog.Int("len", len(dst)))
	return t.transact(CommandRead, func() error {
		if err := t.send(byte(CommandRead), hi, lo); err != nil {
			return err
		}
		return t.receive(dst)
	})
}

/*
 * @Description: 单次事务连续写入，不做页边界拆分，跨页会在器件内部回卷
 * @param addr 起始地址
 * @param data
 * @return error
 */
func (t *EEPROM) WriteRange(addr uint16, data []byte) error {
	hi, lo := addressBytes(addr)
	t.trace("eeprom:write", slog.Uint64("addr", uint64(addr)), slog.Int("len", len(data)))
	return t.transact(CommandWrite, func() error {
		if err := t.send(byte(CommandWrite), hi, lo); err != nil {
			return err
		}
		return t.send(data...)
	})
}

func (t *EEPROM) sleep(d time.Duration) {
	if t.Sleep != nil {
		t.Sleep(d)
		return
	}
	time.Sleep(d)
}

func (t *EEPROM) pollInterval() time.Duration {
	if t.PollInterval > 0 {
		return t.PollInterval
	}
	return DefaultPollInterval
}
