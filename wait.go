package eeprom

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Limit 等待上限，字段为 0 表示不限制
type Limit struct {
	Polls   int
	Timeout time.Duration
}

/*
 * @Description: 轮询状态寄存器直到 RDY 清零，无次数与时间上限；器件一直忙则永不返回
 * @return error 仅传输错误
 */
func (t *EEPROM) Wait() error {
	return t.wait(context.Background(), Limit{})
}

/*
 * @Description: 同 Wait，超过 Polls 次或 Timeout 后返回 ErrBusy
 * @param limit
 * @return error
 */
func (t *EEPROM) WaitLimit(limit Limit) error {
	return t.wait(context.Background(), limit)
}

/*
 * @Description: 同 Wait，ctx 取消后返回 ctx.Err()
 * @param ctx
 * @return error
 */
func (t *EEPROM) WaitContext(ctx context.Context) error {
	return t.wait(ctx, Limit{})
}

func (t *EEPROM) wait(ctx context.Context, limit Limit) error {
	var deadline time.Time
	if limit.Timeout > 0 {
		deadline = time.Now().Add(limit.Timeout)
	}
	interval := t.pollInterval()
	for polls := 1; ; polls++ {
		status, err := t.ReadStatus()
		if err != nil {
			return err
		}
		if !status.Busy() {
			t.trace("eeprom:ready", slog.Int("polls", polls))
			return nil
		}
		if limit.Polls > 0 && polls >= limit.Polls {
			return fmt.Errorf("%w after %d polls", ErrBusy, polls)
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return fmt.Errorf("%w after %s (%d polls)", ErrBusy, limit.Timeout, polls)
		}
		if err = ctx.Err(); err != nil {
			return err
		}
		t.sleep(interval)
	}
}
