package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadyThreadsRunByPriority(t *testing.T) {
	var order []string
	boot(t, testConfig(), func(k *Kernel) {
		for _, c := range []struct {
			name string
			prio Priority
		}{{"p10", 10}, {"p50", 50}, {"p30", 30}, {"p50b", 50}, {"p10b", 10}} {
			name := c.name
			spawn(t, k, name, c.prio, func() { order = append(order, name) })
		}
	})
	assert.Equal(t, []string{"p50", "p50b", "p30", "p10", "p10b"}, order)
}

func TestMoreUrgentThreadPreemptsCreator(t *testing.T) {
	var order []string
	boot(t, testConfig(), func(k *Kernel) {
		spawn(t, k, "hi", HighPriority, func() { order = append(order, "hi") })
		order = append(order, "main")
	})
	assert.Equal(t, []string{"hi", "main"}, order)
}

func TestYieldRotatesEqualPriorities(t *testing.T) {
	var order []string
	boot(t, testConfig(), func(k *Kernel) {
		for _, name := range []string{"a", "b"} {
			name := name
			spawn(t, k, name, 10, func() {
				for i := 0; i < 2; i++ {
					order = append(order, name)
					k.Yield()
				}
			})
		}
	})
	assert.Equal(t, []string{"a", "b", "a", "b"}, order)
}

func TestSleepWakesAtDeadline(t *testing.T) {
	var woke []Tick
	m, _ := boot(t, testConfig(), func(k *Kernel) {
		spawn(t, k, "sleeper", 10, func() {
			k.Sleep(3)
			woke = append(woke, k.Now())
			k.SleepUntil(10)
			woke = append(woke, k.Now())
			k.SleepUntil(4)
			woke = append(woke, k.Now())
		})
	})

	require.NoError(t, m.Tick(2))
	assert.Empty(t, woke)
	require.NoError(t, m.Tick(1))
	assert.Equal(t, []Tick{3}, woke)
	require.NoError(t, m.Tick(7))
	assert.Equal(t, []Tick{3, 10, 10}, woke)
}

func TestRoundRobin(t *testing.T) {
	for _, model := range models {
		for _, tc := range []struct {
			name    string
			quantum uint32
			want    [2]uint64
		}{
			{"quantum 4", 4, [2]uint64{4, 4}},
			{"no slicing", 0, [2]uint64{8, 0}},
		} {
			t.Run(model.String()+"/"+tc.name, func(t *testing.T) {
				cfg := testConfig()
				cfg.TimeQuantum = tc.quantum
				var ids [2]ThreadID
				m, k := bootModel(t, model, cfg, func(k *Kernel) {
					for i, name := range []string{"a", "b"} {
						ids[i] = spawn(t, k, name, 10, func() {
							spinUntil(k, func() bool { return false })
						})
					}
				})

				require.NoError(t, m.Tick(8))
				a, _ := k.Info(ids[0])
				b, _ := k.Info(ids[1])
				assert.Equal(t, tc.want, [2]uint64{a.Ticks, b.Ticks})
			})
		}
	}
}

func TestRoundRobinRotatesInOrder(t *testing.T) {
	for _, model := range models {
		t.Run(model.String(), func(t *testing.T) {
			cfg := testConfig()
			cfg.TimeQuantum = 2
			var order []string
			var ids []ThreadID
			m, k := bootModel(t, model, cfg, func(k *Kernel) {
				for _, name := range []string{"a", "b", "c"} {
					name := name
					ids = append(ids, spawn(t, k, name, 10, func() {
						for {
							if len(order) == 0 || order[len(order)-1] != name {
								order = append(order, name)
							}
							k.Core().WaitForInterrupt()
						}
					}))
				}
			})

			require.NoError(t, m.Tick(12))
			assert.Equal(t, []string{"a", "b", "c", "a", "b", "c", "a"}, order)
			for _, id := range ids {
				info, _ := k.Info(id)
				assert.Equal(t, uint64(4), info.Ticks, info.Name)
			}
		})
	}
}

func TestInterruptPreemptsAtExit(t *testing.T) {
	for _, model := range models {
		t.Run(model.String(), func(t *testing.T) {
			var sem Semaphore
			var order []string
			m, _ := bootModel(t, model, testConfig(), func(k *Kernel) {
				k.InitSemaphore(&sem, 0)
				k.Core().SetVector(0x10, 0x80, k.WrapISR("irq0", func() {
					k.LockFromISR()
					sem.SignalI()
					k.UnlockFromISR()
					order = append(order, "isr")
				}))
				spawn(t, k, "waiter", 20, func() {
					sem.Wait()
					order = append(order, "waiter")
				})
				spawn(t, k, "spinner", 10, func() {
					spinUntil(k, func() bool { return len(order) > 1 })
					order = append(order, "spinner")
				})
			})

			require.NoError(t, m.Interrupt(0x10))
			assert.Equal(t, []string{"isr", "waiter", "spinner"}, order)
			assert.Equal(t, uint64(1), m.Stats().ISRSwitches)
		})
	}
}
