package eeprom

var _ Interface = (*EEPROM)(nil)

type Interface interface {
	// 写使能
	EnableWrite() error

	// 写禁止
	DisableWrite() error

	// 读状态寄存器
	ReadStatus() (Status, error)

	// 写状态寄存器
	WriteStatus(value Status) error

	// 读单字节
	ReadByteAt(addr uint16) (byte, error)

	// 写单字节
	WriteByteAt(addr uint16, value byte) error

	// 连续读
	ReadRange(addr uint16, dst []byte) error

	// 连续写（不跨页）
	WriteRange(addr uint16, data []byte) error

	// 等待写周期完成
	Wait() error

	// 按页写入并可校验
	WriteMemory(addr uint16, data []byte, verify bool) error

	// 读取一段存储器
	ReadMemory(addr uint16, size int) ([]byte, error)

	// 将文件写入 EEPROM
	WriteFile(addr uint16, path string, verify bool, progress func(float64)) error

	// 关闭传输
	Close() error
}
