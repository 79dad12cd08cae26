// Package metrics tracks signer session counters and writes JSON snapshots.
package metrics

import (
	"encoding/json"
	"os"
	"sync/atomic"
	"time"
)

type Snapshot struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Dispatch    DispatchMetrics `json:"dispatch"`
	Echo        EchoMetrics     `json:"echo"`
	Ping        PingMetrics     `json:"ping"`
}

type DispatchMetrics struct {
	Control     uint64 `json:"control"`
	Sign        uint64 `json:"sign"`
	ECDH        uint64 `json:"ecdh"`
	Ping        uint64 `json:"ping"`
	Unhandled   uint64 `json:"unhandled"`
	DropUnknown uint64 `json:"drop_unknown_peer"`
	DropBlocked uint64 `json:"drop_blocked_peer"`
}

type EchoMetrics struct {
	Sent     uint64 `json:"sent"`
	Answered uint64 `json:"answered"`
	Failed   uint64 `json:"failed"`
}

type PingMetrics struct {
	OK     uint64 `json:"ok"`
	Failed uint64 `json:"failed"`
}

type Metrics struct {
	dispatchControl   atomic.Uint64
	dispatchSign      atomic.Uint64
	dispatchECDH      atomic.Uint64
	dispatchPing      atomic.Uint64
	dispatchUnhandled atomic.Uint64
	dropUnknownPeer   atomic.Uint64
	dropBlockedPeer   atomic.Uint64
	echoSent          atomic.Uint64
	echoAnswered      atomic.Uint64
	echoFailed        atomic.Uint64
	pingOK            atomic.Uint64
	pingFailed        atomic.Uint64
}

func New() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncDispatchControl()   { m.dispatchControl.Add(1) }
func (m *Metrics) IncDispatchSign()      { m.dispatchSign.Add(1) }
func (m *Metrics) IncDispatchECDH()      { m.dispatchECDH.Add(1) }
func (m *Metrics) IncDispatchPing()      { m.dispatchPing.Add(1) }
func (m *Metrics) IncDispatchUnhandled() { m.dispatchUnhandled.Add(1) }
func (m *Metrics) IncDropUnknownPeer()   { m.dropUnknownPeer.Add(1) }
func (m *Metrics) IncDropBlockedPeer()   { m.dropBlockedPeer.Add(1) }
func (m *Metrics) IncEchoSent()          { m.echoSent.Add(1) }
func (m *Metrics) IncEchoAnswered()      { m.echoAnswered.Add(1) }
func (m *Metrics) IncEchoFailed()        { m.echoFailed.Add(1) }
func (m *Metrics) IncPingOK()            { m.pingOK.Add(1) }
func (m *Metrics) IncPingFailed()        { m.pingFailed.Add(1) }

func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		GeneratedAt: time.Now().UTC(),
		Dispatch: DispatchMetrics{
			Control:     m.dispatchControl.Load(),
			Sign:        m.dispatchSign.Load(),
			ECDH:        m.dispatchECDH.Load(),
			Ping:        m.dispatchPing.Load(),
			Unhandled:   m.dispatchUnhandled.Load(),
			DropUnknown: m.dropUnknownPeer.Load(),
			DropBlocked: m.dropBlockedPeer.Load(),
		},
		Echo: EchoMetrics{
			Sent:     m.echoSent.Load(),
			Answered: m.echoAnswered.Load(),
			Failed:   m.echoFailed.Load(),
		},
		Ping: PingMetrics{
			OK:     m.pingOK.Load(),
			Failed: m.pingFailed.Load(),
		},
	}
}

func (m *Metrics) WriteSnapshot(path string) error {
	if path == "" {
		return nil
	}
	data, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
