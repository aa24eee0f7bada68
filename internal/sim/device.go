// sim 内存模拟的 25xx SPI EEPROM，实现驱动的 Exchanger 与 ChipSelect，
// 并记录所有总线事件，测试中兼作总线监听
//
// WREN/WRDI 在片选释放时生效；WRITE 与 WRSR 仅在写使能锁存置位时生效，完成后清除锁存；
// 页写入在页内回绕；内部写周期期间只响应 RDSR
package sim

import (
	"errors"
	"fmt"
)

const (
	opWRSR  = 0x01
	opWRITE = 0x02
	opREAD  = 0x03
	opWRDI  = 0x04
	opRDSR  = 0x05
	opWREN  = 0x06

	statusRDY  = 0x01
	statusWEN  = 0x02
	statusBP   = 0x0C
	statusWPEN = 0x80

	// 总线空闲时 MISO 为高
	floating = 0xFF
)

// 未选中片选时传输字节，返回此错误并计入 Violations
var ErrNotSelected = errors.New("sim: exchange without chip select")

type state uint8

const (
	stateIdle state = iota
	stateOpcode
	stateAddrHi
	stateAddrLo
	stateData
	stateStatusOut
	stateStatusIn
	stateIgnore
)

// 总线事件类型
type EventKind uint8

const (
	EventAssert EventKind = iota
	EventDeassert
	EventExchange
)

func (k EventKind) String() string {
	switch k {
	case EventAssert:
		return "CS-LOW"
	case EventDeassert:
		return "CS-HIGH"
	case EventExchange:
		return "XFER"
	}
	return "unknown"
}

// 一次总线操作，Out 为主机发出的字节，In 为返回的字节
type Event struct {
	Kind EventKind
	Out  byte
	In   byte
}

func (e Event) String() string {
	if e.Kind == EventExchange {
		return fmt.Sprintf("%s %#02x > %#02x", e.Kind, e.Out, e.In)
	}
	return e.Kind.String()
}

type pendingWrite struct {
	addr  int
	value byte
}

// Device 模拟 EEPROM，零值不可用，请用 New 创建
type Device struct {
	Memory   []byte
	PageSize int
	// 每次写周期后 RDSR 报告 RDY=1 的次数
	BusyPolls int
	// RDY 永不清零
	StuckBusy bool

	// 故障注入，非空时对应调用返回该错误
	ExchangeErr error
	AssertErr   error
	DeassertErr error

	Events     []Event
	Violations int
	Closed     bool

	selected bool
	st       state
	opcode   byte
	addr     int
	status   byte // 只保存 BP 与 WPEN
	wen      bool
	busy     int
	received []byte
	pending  []pendingWrite
}

/*
 * @Description: 创建模拟器件，内容全部为 0xFF
 * @param size 容量（字节）
 * @param pageSize 页大小
 * @return *Device
 */
func New(size, pageSize int) *Device {
	d := &Device{
		Memory:   make([]byte, size),
		PageSize: pageSize,
	}
	for i := range d.Memory {
		d.Memory[i] = 0xFF
	}
	return d
}

// 器件当前会返回的状态寄存器
func (d *Device) Status() byte {
	s := d.status
	if d.wen {
		s |= statusWEN
	}
	if d.StuckBusy || d.busy > 0 {
		s |= statusRDY
	}
	return s
}

// 直接设置 BP 与 WPEN 位，相当于之前已经编程过
func (d *Device) SetStatus(s byte) {
	d.status = s & (statusBP | statusWPEN)
}

// 内部写周期是否在进行
func (d *Device) Busy() bool { return d.StuckBusy || d.busy > 0 }

// 片选拉低，重复拉低计入 Violations
func (d *Device) Assert() error {
	if d.AssertErr != nil {
		return d.AssertErr
	}
	if d.selected {
		d.Violations++
	}
	d.Events = append(d.Events, Event{Kind: EventAssert})
	d.selected = true
	d.st = stateOpcode
	d.received = d.received[:0]
	d.pending = d.pending[:0]
	return nil
}

// 片选拉高，并提交本次事务的命令
func (d *Device) Deassert() error {
	if d.DeassertErr != nil {
		return d.DeassertErr
	}
	if !d.selected {
		d.Violations++
	}
	d.Events = append(d.Events, Event{Kind: EventDeassert})
	d.selected = false
	d.commit()
	d.st = stateIdle
	return nil
}

/*
 * @Description: 时钟一个字节，记录事件
 * @param b 主机发出的字节
 * @return byte 器件返回的字节
 * @return error
 */
func (d *Device) Exchange(b byte) (byte, error) {
	if d.ExchangeErr != nil {
		return 0, d.ExchangeErr
	}
	if !d.selected {
		d.Violations++
		d.Events = append(d.Events, Event{Kind: EventExchange, Out: b, In: floating})
		return floating, ErrNotSelected
	}
	in := d.clock(b)
	d.Events = append(d.Events, Event{Kind: EventExchange, Out: b, In: in})
	return in, nil
}

// 只记录已关闭
func (d *Device) Close() error {
	d.Closed = true
	return nil
}

func (d *Device) clock(b byte) byte {
	switch d.st {
	case stateOpcode:
		d.opcode = b
		switch {
		case d.Busy() && b != opRDSR:
			d.st = stateIgnore
		case b == opRDSR:
			d.st = stateStatusOut
		case b == opWRSR:
			d.st = stateStatusIn
		case b == opREAD || b == opWRITE:
			d.st = stateAddrHi
		default:
			d.st = stateIgnore
		}
	case stateAddrHi:
		d.addr = int(b) << 8
		d.st = stateAddrLo
	case stateAddrLo:
		d.addr |= int(b)
		d.addr %= len(d.Memory)
		d.st = stateData
	case stateData:
		if d.opcode == opREAD {
			out := d.Memory[d.addr]
			d.addr = (d.addr + 1) % len(d.Memory)
			return out
		}
		d.received = append(d.received, b)
	case stateStatusOut:
		return d.Status()
	case stateStatusIn:
		d.received = append(d.received, b)
	}
	return floating
}

// 片选释放时执行命令
func (d *Device) commit() {
	if d.st == stateIdle || d.st == stateOpcode {
		return
	}
	switch d.opcode {
	case opWREN:
		if !d.Busy() {
			d.wen = true
		}
	case opWRDI:
		if !d.Busy() {
			d.wen = false
		}
	case opRDSR:
		if d.busy > 0 {
			d.busy--
		}
	case opWRSR:
		if d.st != stateStatusIn || !d.wen || len(d.received) == 0 {
			return
		}
		d.status = d.received[len(d.received)-1] & (statusBP | statusWPEN)
		d.startWriteCycle()
	case opWRITE:
		if d.st != stateData || !d.wen || len(d.received) == 0 {
			return
		}
		d.writePage()
		d.startWriteCycle()
	}
}

func (d *Device) writePage() {
	page := d.PageSize
	if page <= 0 {
		page = len(d.Memory)
	}
	base := d.addr &^ (page - 1)
	for i, b := range d.received {
		addr := base | ((d.addr + i) & (page - 1))
		if d.protected(addr) {
			continue
		}
		d.pending = append(d.pending, pendingWrite{addr: addr, value: b})
	}
	for _, w := range d.pending {
		d.Memory[w.addr] = w.value
	}
}

func (d *Device) protected(addr int) bool {
	size := len(d.Memory)
	switch (d.status & statusBP) >> 2 {
	case 1:
		return addr >= size-size/4
	case 2:
		return addr >= size-size/2
	case 3:
		return true
	}
	return false
}

func (d *Device) startWriteCycle() {
	d.wen = false
	d.busy = d.BusyPolls
}

// 主机发出的字节，每个片选区间一组
func (d *Device) Transactions() [][]byte {
	var out [][]byte
	var cur []byte
	open := false
	for _, e := range d.Events {
		switch e.Kind {
		case EventAssert:
			cur = []byte{}
			open = true
		case EventExchange:
			if open {
				cur = append(cur, e.Out)
			}
		case EventDeassert:
			if open {
				out = append(out, cur)
			}
			open = false
		}
	}
	return out
}

// 类型为 k 的事件数
func (d *Device) Count(k EventKind) int {
	n := 0
	for _, e := range d.Events {
		if e.Kind == k {
			n++
		}
	}
	return n
}

// 清空事件记录与 Violations
func (d *Device) Reset() {
	d.Events = d.Events[:0]
	d.Violations = 0
}
