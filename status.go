package eeprom

import "fmt"

// Status 状态寄存器快照，每次都从器件重新读取
type Status byte

// 状态寄存器位定义（bit0 为最低位）
const (
	StatusRDY  Status = 0x01 // 1=内部写周期进行中
	StatusWEN  Status = 0x02 // 写使能锁存
	StatusBP   Status = 0x0C // 块保护 BP1:BP0
	StatusWPEN Status = 0x80 // WP 引脚使能

	statusBPShift = 2
)

// BlockProtection 块保护等级，保护区间由器件容量决定
type BlockProtection uint8

const (
	ProtectNone    BlockProtection = 0 // 不保护
	ProtectQuarter BlockProtection = 1 // 高 1/4
	ProtectHalf    BlockProtection = 2 // 高 1/2
	ProtectAll     BlockProtection = 3 // 全部
)

func (bp BlockProtection) String() string {
	switch bp {
	case ProtectNone:
		return "none"
	case ProtectQuarter:
		return "quarter"
	case ProtectHalf:
		return "half"
	case ProtectAll:
		return "all"
	}
	return fmt.Sprintf("BlockProtection(%d)", uint8(bp))
}

/*
 * @Description: 返回被保护的地址区间 [start, end)，未保护时 start == end == size
 * @param size 器件容量（字节）
 */
func (bp BlockProtection) Range(size int) (start, end int) {
	switch bp & 0x03 {
	case ProtectQuarter:
		return size - size/4, size
	case ProtectHalf:
		return size - size/2, size
	case ProtectAll:
		return 0, size
	}
	return size, size
}

// ParseBlockProtection 解析 none/quarter/half/all
func ParseBlockProtection(s string) (BlockProtection, error) {
	for bp := ProtectNone; bp <= ProtectAll; bp++ {
		if bp.String() == s {
			return bp, nil
		}
	}
	return 0, fmt.Errorf("unknown block protection %q", s)
}

// Busy 器件是否仍在内部写
func (s Status) Busy() bool { return s&StatusRDY != 0 }

// WriteEnabled 写使能锁存是否置位
func (s Status) WriteEnabled() bool { return s&StatusWEN != 0 }

func (s Status) BlockProtection() BlockProtection {
	return BlockProtection((s & StatusBP) >> statusBPShift)
}

func (s Status) WriteProtectEnabled() bool { return s&StatusWPEN != 0 }

// WithBlockProtection 替换 BP 位，其它位不变
func (s Status) WithBlockProtection(bp BlockProtection) Status {
	return s&^StatusBP | (Status(bp)<<statusBPShift)&StatusBP
}

func (s Status) WithWriteProtectEnable(enable bool) Status {
	if enable {
		return s | StatusWPEN
	}
	return s &^ StatusWPEN
}

func (s Status) String() string {
	return fmt.Sprintf("0x%02X RDY=%d WEN=%d BP=%s WPEN=%d",
		byte(s), b2u8(s.Busy()), b2u8(s.WriteEnabled()), s.BlockProtection(), b2u8(s.WriteProtectEnabled()))
}

func b2u8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
