// periphspi 通过 periph.io 使用 Linux spidev 总线和 GPIO 片选驱动 EEPROM
//
// spidev 的硬件片选每次 Tx 都会翻转，一条命令会被拆成逐字节的事务，
// 因此总线以 spi.NoCS 打开，片选改由 GPIO 控制
package periphspi

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// 默认 SPI 时钟，3.3V 下 25xx 系列都能工作
const DefaultFrequency = 1 * physic.MegaHertz

// Conn 将 spi.Conn 适配为单字节全双工交换
type Conn struct {
	spi.Conn
}

/*
 * @Description: 发送一个字节并返回同时收到的字节
 * @param b
 * @return byte
 * @return error
 */
func (c *Conn) Exchange(b byte) (byte, error) {
	w := [1]byte{b}
	var r [1]byte
	if err := c.Conn.Tx(w[:], r[:]); err != nil {
		return 0, err
	}
	return r[0], nil
}

// Pin 低电平有效的片选
type Pin struct {
	gpio.PinOut
}

// 片选拉低
func (p *Pin) Assert() error {
	return p.Out(gpio.Low)
}

// 片选拉高
func (p *Pin) Deassert() error {
	return p.Out(gpio.High)
}

// Port 已打开的总线及其片选
type Port struct {
	SPI    *Conn
	CS     *Pin
	closer spi.PortCloser
}

/*
 * @Description: 初始化 periph 驱动，以 mode 0、无硬件片选打开总线，并占用指定 GPIO 作为片选
 * @param bus 总线名，例如 SPI0.0 或 /dev/spidev0.0
 * @param cs GPIO 名，例如 GPIO8
 * @param freq 为 0 时使用 DefaultFrequency
 * @return *Port
 * @return error
 */
func Open(bus, cs string, freq physic.Frequency) (*Port, error) {
	if cs == "" {
		return nil, errors.New("periphspi: a GPIO chip select is required")
	}
	if freq == 0 {
		freq = DefaultFrequency
	}
	if _, err := host.Init(); err != nil {
		return nil, err
	}
	pin := gpioreg.ByName(cs)
	if pin == nil {
		return nil, fmt.Errorf("periphspi: no GPIO named %q", cs)
	}
	if err := pin.Out(gpio.High); err != nil {
		return nil, err
	}
	pc, err := spireg.Open(bus)
	if err != nil {
		return nil, err
	}
	conn, err := pc.Connect(freq, spi.Mode0|spi.NoCS, 8)
	if err != nil {
		pc.Close()
		return nil, err
	}
	return &Port{SPI: &Conn{Conn: conn}, CS: &Pin{PinOut: pin}, closer: pc}, nil
}

// 见 Conn.Exchange
func (p *Port) Exchange(b byte) (byte, error) { return p.SPI.Exchange(b) }

// 片选拉低
func (p *Port) Assert() error { return p.CS.Assert() }

// 片选拉高
func (p *Port) Deassert() error { return p.CS.Deassert() }

/*
 * @Description: 释放片选并关闭总线
 * @return error
 */
func (p *Port) Close() error {
	err := p.CS.Deassert()
	if p.closer != nil {
		err = errors.Join(err, p.closer.Close())
	}
	return err
}
