// Package clocks provides wasi:clocks/wall-clock and
// wasi:clocks/monotonic-clock backed by the host clock.
package clocks

import (
	"context"
	"time"

	"github.com/tetratelabs/wazero/api"

	"github.com/tidewave/wasmhost/linker"
	"github.com/tidewave/wasmhost/wasi/preview2"
)

// WallClockProvider implements wasi:clocks/wall-clock. now returns a
// datetime record: seconds u64 at offset 0, nanoseconds u32 at offset 8.
type WallClockProvider struct{}

func NewWallClockProvider() *WallClockProvider { return &WallClockProvider{} }

func (p *WallClockProvider) Name() string { return "wasi:clocks/wall-clock" }

func (p *WallClockProvider) Versions() []string { return linker.DefaultVersions }

func (p *WallClockProvider) Functions() []linker.FuncDecl {
	i32 := api.ValueTypeI32
	return []linker.FuncDecl{
		{Name: "now", Params: []api.ValueType{i32}, Fn: p.now},
		{Name: "resolution", Params: []api.ValueType{i32}, Fn: p.resolution},
	}
}

func writeDatetime(mem api.Memory, retptr uint32, t time.Time) {
	mem.WriteUint64Le(retptr, uint64(t.Unix()))
	mem.WriteUint32Le(retptr+8, uint32(t.Nanosecond()))
}

func (p *WallClockProvider) now(_ context.Context, mod api.Module, stack []uint64) {
	writeDatetime(mod.Memory(), uint32(stack[0]), time.Now())
}

func (p *WallClockProvider) resolution(_ context.Context, mod api.Module, stack []uint64) {
	retptr := uint32(stack[0])
	mem := mod.Memory()
	mem.WriteUint64Le(retptr, 0)
	mem.WriteUint32Le(retptr+8, 1000) // microsecond granularity
}

// MonotonicClockProvider implements wasi:clocks/monotonic-clock.
// Instants are nanoseconds since an arbitrary epoch fixed at provider
// construction, so they never decrease across calls.
type MonotonicClockProvider struct {
	host  *preview2.Host
	epoch time.Time
}

func NewMonotonicClockProvider(host *preview2.Host) *MonotonicClockProvider {
	return &MonotonicClockProvider{host: host, epoch: time.Now()}
}

func (p *MonotonicClockProvider) Name() string { return "wasi:clocks/monotonic-clock" }

func (p *MonotonicClockProvider) Versions() []string { return linker.DefaultVersions }

func (p *MonotonicClockProvider) Functions() []linker.FuncDecl {
	i32 := api.ValueTypeI32
	i64 := api.ValueTypeI64
	return []linker.FuncDecl{
		{Name: "now", Results: []api.ValueType{i64}, Fn: p.now},
		{Name: "resolution", Results: []api.ValueType{i64}, Fn: p.resolution},
		{Name: "subscribe-instant", Params: []api.ValueType{i64}, Results: []api.ValueType{i32}, Fn: p.subscribeInstant},
		{Name: "subscribe-duration", Params: []api.ValueType{i64}, Results: []api.ValueType{i32}, Fn: p.subscribeDuration},
	}
}

func (p *MonotonicClockProvider) nanos() uint64 {
	return uint64(time.Since(p.epoch))
}

func (p *MonotonicClockProvider) now(_ context.Context, _ api.Module, stack []uint64) {
	stack[0] = p.nanos()
}

func (p *MonotonicClockProvider) resolution(_ context.Context, _ api.Module, stack []uint64) {
	stack[0] = 1 // nanosecond
}

func (p *MonotonicClockProvider) subscribeInstant(_ context.Context, _ api.Module, stack []uint64) {
	instant := stack[0]
	deadline := p.epoch.Add(time.Duration(instant))
	stack[0] = uint64(uint32(p.host.Resources.Register(preview2.NewTimerPollable(deadline))))
}

func (p *MonotonicClockProvider) subscribeDuration(_ context.Context, _ api.Module, stack []uint64) {
	d := time.Duration(stack[0])
	stack[0] = uint64(uint32(p.host.Resources.Register(preview2.NewTimerPollable(time.Now().Add(d)))))
}
