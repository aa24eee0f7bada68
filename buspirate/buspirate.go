package buspirate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

var NACKError = errors.New("NACK")

// Bus Pirate 二进制模式指令
const (
	cmdReset       = 0x00 // 进入/回到 bitbang 模式
	cmdSPI         = 0x01 // bitbang -> SPI
	cmdCSLow       = 0x02
	cmdCSHigh      = 0x03
	cmdExitToUser  = 0x0F // 复位回终端模式
	cmdBulk        = 0x10 // 0001xxxx 传输 1-16 字节
	cmdPeripherals = 0x40 // 0100wxyz 电源/上拉/AUX/CS
	cmdSpeed       = 0x60 // 01100xxx
	cmdConfig      = 0x80 // 1000wxyz 输出/空闲/边沿/采样

	ack = 0x01

	peripheralPower = 0x08
	peripheralCS    = 0x01
	// 3.3V 推挽输出，CKP=0 CKE=1 SMP=0，即 SPI mode 0
	configMode0 = 0x0A
)

// Speed SPI 时钟
type Speed byte

const (
	Speed30kHz  Speed = 0
	Speed125kHz Speed = 1
	Speed250kHz Speed = 2
	Speed1MHz   Speed = 3
	Speed2MHz   Speed = 4
	Speed2_6MHz Speed = 5
	Speed4MHz   Speed = 6
	Speed8MHz   Speed = 7
)

const ReadTimeout = 100 * time.Millisecond

// DefaultMode Bus Pirate v3/v4 的 USB 串口参数
var DefaultMode = serial.Mode{
	BaudRate: 115200,
	DataBits: 8,
	StopBits: serial.OneStopBit,
	Parity:   serial.NoParity,
}

// Bridge 通过 Bus Pirate 的二进制 SPI 模式交换字节并控制 CS
type Bridge struct {
	Port   serial.Port
	Logger *slog.Logger
}

/*
 * @Description: 打开串口并进入 SPI 模式
 * @param name 串口名，例如 /dev/ttyUSB0 或 COM4
 * @param mode 为空时使用 DefaultMode
 * @param speed SPI 时钟
 * @return *Bridge
 * @return error
 */
func Open(name string, mode *serial.Mode, speed Speed) (*Bridge, error) {
	if mode == nil {
		m := DefaultMode
		mode = &m
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, err
	}
	if err = port.SetReadTimeout(ReadTimeout); err != nil {
		port.Close()
		return nil, err
	}
	t := &Bridge{Port: port}
	if err = t.Setup(speed); err != nil {
		port.Close()
		return nil, err
	}
	return t, nil
}

/*
 * @Description: 进入 bitbang -> SPI 模式并配置时钟、电源、CS 空闲为高
 * @param speed
 * @return error
 */
func (t *Bridge) Setup(speed Speed) error {
	if err := t.Port.ResetInputBuffer(); err != nil {
		return err
	}
	if err := t.enterBitbang(); err != nil {
		return err
	}
	if err := t.expect([]byte{cmdSPI}, []byte("SPI1"), time.Second); err != nil {
		return err
	}
	if err := t.command(cmdConfig | configMode0); err != nil {
		return err
	}
	if err := t.command(cmdSpeed | byte(speed&0x07)); err != nil {
		return err
	}
	if err := t.command(cmdPeripherals | peripheralPower | peripheralCS); err != nil {
		return err
	}
	t.debug("buspirate:spi", slog.Int("speed", int(speed)))
	return nil
}

// 最多发送 20 次 0x00，直到返回 BBIO1
func (t *Bridge) enterBitbang() error {
	for i := 0; i < 20; i++ {
		if err := t.expect([]byte{cmdReset}, []byte("BBIO1"), ReadTimeout); err == nil {
			return nil
		}
	}
	return fmt.Errorf("0x%02X timeout: bus pirate did not enter binary mode", cmdReset)
}

// Assert 拉低 CS
func (t *Bridge) Assert() error {
	return t.command(cmdCSLow)
}

// Deassert 拉高 CS
func (t *Bridge) Deassert() error {
	return t.command(cmdCSHigh)
}

/*
 * @Description: 单字节批量传输，返回同时收到的字节
 * @param b
 * @return byte
 * @return error
 */
func (t *Bridge) Exchange(b byte) (byte, error) {
	if _, err := t.Port.Write([]byte{cmdBulk, b}); err != nil {
		return 0, err
	}
	buf, err := t.read(2, time.Second)
	if err != nil {
		return 0, err
	}
	if buf[0] != ack {
		return 0, NACKError
	}
	return buf[1], nil
}

/*
 * @Description: 回到终端模式并关闭串口
 * @return error
 */
func (t *Bridge) Close() error {
	err := t.expect([]byte{cmdReset}, []byte("BBIO1"), ReadTimeout)
	if err == nil {
		_, err = t.Port.Write([]byte{cmdExitToUser})
	}
	return errors.Join(err, t.Port.Close())
}

// command 发送单字节指令并等待 0x01
func (t *Bridge) command(cmd byte) error {
	if _, err := t.Port.Write([]byte{cmd}); err != nil {
		return err
	}
	buf, err := t.read(1, time.Second)
	if err != nil {
		return fmt.Errorf("0x%02X %w", cmd, err)
	}
	if buf[0] != ack {
		return fmt.Errorf("0x%02X %w", cmd, NACKError)
	}
	return nil
}

func (t *Bridge) expect(data, reply []byte, after time.Duration) error {
	if _, err := t.Port.Write(data); err != nil {
		return err
	}
	buf, err := t.read(len(reply), after)
	if err != nil {
		return fmt.Errorf("0x%02X %w", data, err)
	}
	if !bytes.Equal(buf, reply) {
		return fmt.Errorf("0x%02X unexpected reply %q", data, buf)
	}
	return nil
}

// read 在 after 时间内读满 n 个字节
func (t *Bridge) read(n int, after time.Duration) ([]byte, error) {
	timeout := time.After(after)
	buff := make([]byte, 0, n)
	temp := make([]byte, n)
	for len(buff) < n {
		select {
		case <-timeout:
			return buff, fmt.Errorf("timeout")
		default:
			got, err := t.Port.Read(temp[:n-len(buff)])
			if err != nil {
				return buff, err
			}
			buff = append(buff, temp[:got]...)
		}
	}
	return buff, nil
}

func (t *Bridge) debug(msg string, attrs ...slog.Attr) {
	if t.Logger != nil {
		t.Logger.LogAttrs(context.Background(), slog.LevelDebug, msg, attrs...)
	}
}

// PortInfo 串口信息
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID, PID     string
	SerialNumber string
}

/*
 * @Description: 列出本机串口，Bus Pirate v3 通常为 FTDI 0403:6001
 * @return []PortInfo
 * @return error
 */
func List() ([]PortInfo, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}
	infos := make([]PortInfo, 0, len(ports))
	for _, port := range ports {
		infos = append(infos, PortInfo{
			Name:         port.Name,
			IsUSB:        port.IsUSB,
			VID:          port.VID,
			PID:          port.PID,
			SerialNumber: port.SerialNumber,
		})
	}
	return infos, nil
}
