package cliapp

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/watchcore/periodwatch/traffic"
	"github.com/watchcore/periodwatch/watch"
	"github.com/watchcore/periodwatch/watchdog"
)

// Session wires one instance of all three engines together for the demo
// CLI, driven by a Config. There is no real host to sample from, so
// watch items read from a scripted, cycling value sequence and traffic
// interfaces read from simulated monotonically increasing counters,
// standing in for whatever sampler and device-stats adaptor a real
// deployment would plug in.
type Session struct {
	cfg *Config

	Watcher  *watch.Watcher
	Watchdog *watchdog.Supervisor
	Traffic  *traffic.Registry

	watchItems    map[string]*watch.Item
	watchdogItems map[string]*watchdog.Item

	links *linkSet
}

// watchScript cycles through a configured value list, wrapping once
// exhausted.
type watchScript struct {
	mu     sync.Mutex
	values []int64
	pos    int
}

func (s *watchScript) next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.values[s.pos%len(s.values)]
	s.pos++
	return v
}

// linkSet simulates per-interface monotonic NIC counters, incremented on
// every read to stand in for real traffic.
type linkSet struct {
	mu    sync.Mutex
	stats map[string]traffic.Stats
}

func newLinkSet(names []string) *linkSet {
	ls := &linkSet{stats: make(map[string]traffic.Stats, len(names))}
	for _, name := range names {
		ls.stats[name] = traffic.Stats{}
	}
	return ls
}

func (ls *linkSet) read(name string) (traffic.Stats, error) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	s, ok := ls.stats[name]
	if !ok {
		return traffic.Stats{}, fmt.Errorf("no such simulated link %q", name)
	}
	s.TxPackets += 37
	s.TxBytes += 5200
	s.RxPackets += 29
	s.RxBytes += 4100
	ls.stats[name] = s
	return s, nil
}

// NewSession constructs and initializes all three engines from cfg but
// does not start sampling; call Start.
func NewSession(cfg *Config) (*Session, error) {
	links := newLinkSet(cfg.Interfaces)
	sess := &Session{
		cfg:           cfg,
		Watcher:       watch.New(),
		Watchdog:      watchdog.New(),
		Traffic:       traffic.New(traffic.WithStatsReader(links.read)),
		watchItems:    make(map[string]*watch.Item),
		watchdogItems: make(map[string]*watchdog.Item),
		links:         links,
	}

	sess.Watcher.Init(cfg.BasePeriodMS)
	for _, wi := range cfg.WatchItems {
		script := &watchScript{values: wi.Values}
		it, err := sess.Watcher.AddItem(watch.ItemInit{
			Name:       wi.Name,
			PeriodMS:   wi.PeriodMS,
			Hysteresis: wi.Hysteresis,
			Sampler:    func(ctx any) int64 { return script.next() },
			Action: func(prev, cur int64, ctx any) {
				slog.Info("watch: state change", "item", wi.Name, "previous", prev, "current", cur)
			},
		})
		if err != nil {
			return nil, fmt.Errorf("add watch item %q: %w", wi.Name, err)
		}
		sess.watchItems[wi.Name] = it
	}

	if err := sess.Watchdog.Init(); err != nil {
		return nil, fmt.Errorf("init watchdog: %w", err)
	}
	for _, wd := range cfg.WatchdogItems {
		name := wd.Name
		it := sess.Watchdog.Add(wd.TimeoutMS, func(ctx any) {
			slog.Warn("watchdog: recovery fired", "item", name)
		}, nil)
		sess.watchdogItems[name] = it
	}

	sess.Traffic.Init(cfg.Interfaces)

	return sess, nil
}

// Start arms every watchdog item, starts the watcher, and brings every
// configured interface up.
func (sess *Session) Start() error {
	if err := sess.Watcher.Start(); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	for _, it := range sess.watchdogItems {
		it.Start()
	}
	for _, name := range sess.cfg.Interfaces {
		sess.Traffic.HandleDeviceEvent(name, traffic.DeviceUp)
	}
	return nil
}

// Stop tears down all three engines.
func (sess *Session) Stop() {
	_ = sess.Watcher.Stop()
	sess.Watchdog.Deinit()
	sess.Traffic.Cleanup()
}

// FeedWatchdog marks every configured watchdog item as freshly fed,
// simulating a healthy host resetting its own timeout.
func (sess *Session) FeedWatchdog() {
	for _, it := range sess.watchdogItems {
		it.Cancel()
		it.Start()
	}
}

// WatchSnapshot is one item's queryable state for the status command.
type WatchSnapshot struct {
	Name         string `json:"name"`
	CurrentState int64  `json:"current_state"`
	SampleCount  uint64 `json:"sample_count"`
	ActionCount  uint64 `json:"action_count"`
}

// WatchdogSnapshot is one item's queryable state for the status command.
type WatchdogSnapshot struct {
	Name      string `json:"name"`
	TimeoutMS uint64 `json:"timeout_ms"`
	Active    bool   `json:"active"`
}

// Snapshot gathers a point-in-time view across all three engines.
type Snapshot struct {
	WatchItems    []WatchSnapshot    `json:"watch_items"`
	WatchdogItems []WatchdogSnapshot `json:"watchdog_items"`
	Traffic       map[string]traffic.Stats `json:"traffic"`
	TrafficTotal  traffic.Stats            `json:"traffic_total"`
}

func (sess *Session) Snapshot() (Snapshot, error) {
	var snap Snapshot

	for _, wi := range sess.cfg.WatchItems {
		it := sess.watchItems[wi.Name]
		state, err := sess.Watcher.GetItemState(it)
		if err != nil {
			return Snapshot{}, fmt.Errorf("get state %q: %w", wi.Name, err)
		}
		samples, actions, err := sess.Watcher.GetItemStats(it)
		if err != nil {
			return Snapshot{}, fmt.Errorf("get stats %q: %w", wi.Name, err)
		}
		snap.WatchItems = append(snap.WatchItems, WatchSnapshot{
			Name: wi.Name, CurrentState: state, SampleCount: samples, ActionCount: actions,
		})
	}

	for _, wd := range sess.cfg.WatchdogItems {
		it := sess.watchdogItems[wd.Name]
		snap.WatchdogItems = append(snap.WatchdogItems, WatchdogSnapshot{
			Name: wd.Name, TimeoutMS: it.TimeoutMS(), Active: it.Active(),
		})
	}

	snap.Traffic = make(map[string]traffic.Stats, len(sess.cfg.Interfaces))
	for _, name := range sess.cfg.Interfaces {
		snap.Traffic[name] = sess.Traffic.DeltaSingle(name)
	}
	snap.TrafficTotal = sess.Traffic.DeltaAll()

	return snap, nil
}
