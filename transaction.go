package eeprom

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Exchanger 全双工单字节交换（SPI）
type Exchanger interface {
	Exchange(b byte) (byte, error)
}

// ChipSelect 片选线，Assert 拉低选中，Deassert 释放
type ChipSelect interface {
	Assert() error
	Deassert() error
}

// 读数据时发送的占位字节
const dummyByte = 0x00

/*
 * @Description: 片选包裹一次完整事务，无论 fn 是否出错都会释放片选
 * @param command 仅用于日志
 * @param fn 事务内的字节交换
 * @return error
 */
func (t *EEPROM) transact(command Command, fn func() error) error {
	if err := t.CS.Assert(); err != nil {
		return fmt.Errorf("%s: assert cs: %w", command, err)
	}
	t.trace("eeprom:cs-assert", slog.String("cmd", command.String()))
	err := fn()
	if csErr := t.CS.Deassert(); csErr != nil {
		err = errors.Join(err, fmt.Errorf("deassert cs: %w", csErr))
	}
	t.trace("eeprom:cs-deassert", slog.String("cmd", command.String()))
	if err != nil {
		t.logerr("eeprom:transact", slog.String("cmd", command.String()), slog.String("err", err.Error()))
		return fmt.Errorf("%s: %w", command, err)
	}
	return nil
}

// send 依次发送，丢弃收到的字节
func (t *EEPROM) send(data ...byte) error {
	for _, b := range data {
		if _, err := t.SPI.Exchange(b); err != nil {
			return err
		}
	}
	return nil
}

// receive 发送占位字节，填满 dst
func (t *EEPROM) receive(dst []byte) error {
	for i := range dst {
		b, err := t.SPI.Exchange(dummyByte)
		if err != nil {
			return err
		}
		dst[i] = b
	}
	return nil
}

/*
 * @Description: 关闭底层传输，SPI 与 CS 为同一对象时只关闭一次
 * @return error
 */
func (t *EEPROM) Close() error {
	var errs []error
	spi, spiOK := t.SPI.(io.Closer)
	if spiOK {
		errs = append(errs, spi.Close())
	}
	if cs, ok := t.CS.(io.Closer); ok && !(spiOK && any(cs) == any(spi)) {
		errs = append(errs, cs.Close())
	}
	return errors.Join(errs...)
}
