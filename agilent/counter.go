package agilent

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/amcc/golab/comm"
	"github.com/amcc/golab/oscilloscope"
	"github.com/amcc/golab/scpi"
)

// Counter is a 53131A universal counter
type Counter struct {
	scpi.SCPI
}

// NewCounter creates a new Counter instance with handshaked writes
func NewCounter(s *comm.Session) *Counter {
	return &Counter{scpi.SCPI{Session: s, Handshaking: true}}
}

func (c *Counter) writeAll(cmds ...string) error {
	for _, cmd := range cmds {
		if err := c.Write(cmd); err != nil {
			return err
		}
	}
	return nil
}

// BasicSetup resets the counter and configures channel 1 to totalize
// negative going events at -200 mV for 100 ms
func (c *Counter) BasicSetup() error {
	return c.writeAll(
		"*RST",
		"*CLS",
		":EVEN:LEV:AUTO OFF",
		":EVEN:LEV -0.200V",
		":EVEN:SLOP NEG",
		":EVEN:HYST:REL 0",
		":INP:COUP AC",
		":INP:IMP 50",
		":INP:FILT OFF",
		`:FUNC "TOT 1"`,
		":TOT:ARM:STAR:SOUR IMM",
		":TOT:ARM:STOP:SOUR TIM",
		":TOT:ARM:STOP:TIM 0.1",
		":INP:ATT 1")
}

// SetImpedance sets the input impedance, 50 Ohm or 1 MOhm
func (c *Counter) SetImpedance(ch int, ohms int) error {
	if ohms != 50 && ohms != 1000000 {
		return &scpi.InvalidArgument{Setting: "impedance", Value: ohms, Domain: "50 or 1000000"}
	}
	return c.Write(fmt.Sprintf(":INP%d:IMP %d", ch, ohms))
}

// SetHysteresis sets the relative hysteresis in percent
func (c *Counter) SetHysteresis(ch int, percent int) error {
	if err := scpi.CheckRange("hysteresis", float64(percent), 0, 100); err != nil {
		return err
	}
	return c.Write(fmt.Sprintf(":EVEN%d:HYST:REL %d", ch, percent))
}

// SetCoupling selects DC or AC input coupling
func (c *Counter) SetCoupling(ch int, dc bool) error {
	coup := "AC"
	if dc {
		coup = "DC"
	}
	return c.Write(fmt.Sprintf(":INP%d:COUP %s", ch, coup))
}

// SetFilter turns the 100 kHz lowpass filter on or off
func (c *Counter) SetFilter(ch int, on bool) error {
	state := "OFF"
	if on {
		state = "ON"
	}
	return c.Write(fmt.Sprintf(":INP%d:FILT %s", ch, state))
}

// SetTrigger sets the trigger slope and, unless auto, the trigger level in V
func (c *Counter) SetTrigger(ch int, volts float64, positive, auto bool) error {
	slope := "NEG"
	if positive {
		slope = "POS"
	}
	if err := c.Write(fmt.Sprintf(":EVEN%d:SLOP %s", ch, slope)); err != nil {
		return err
	}
	if auto {
		return nil
	}
	if err := scpi.CheckRange("trigger level", volts, -5.125, 5.125); err != nil {
		return err
	}
	return c.writeAll(":EVEN:LEV:AUTO OFF", fmt.Sprintf(":EVEN%d:LEV %.3fV", ch, volts))
}

// SetupTimedCount configures totalizing on a channel for a fixed time
func (c *Counter) SetupTimedCount(ch int) error {
	return c.writeAll(
		":INP:FILT OFF",
		fmt.Sprintf(`:FUNC "TOT %d"`, ch),
		":TOT:ARM:STAR:SOUR IMM",
		":TOT:ARM:STOP:SOUR TIM")
}

// SetupRatio configures measurement of the frequency ratio of channels 1 and 2
func (c *Counter) SetupRatio() error {
	return c.writeAll(
		`:FUNC "FREQ:RAT 1,2"`,
		":FREQ:ARM:STAR:SOUR IMM",
		":FREQ:ARM:STOP:SOUR TIM")
}

// SetupTotalize configures continuous totalizing
func (c *Counter) SetupTotalize() error {
	return c.Write(":CONF:TOT:CONT")
}

func (c *Counter) readFloat() (float64, error) {
	resp, err := c.Query(":READ?")
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(resp), 64)
}

// TimedCount counts for d and returns the count rate in counts per second
func (c *Counter) TimedCount(d time.Duration) (float64, error) {
	if d < time.Millisecond {
		return 0, &scpi.InvalidArgument{Setting: "counting time", Value: d, Domain: "at least 1ms"}
	}
	if err := c.Write(fmt.Sprintf(":TOT:ARM:STOP:TIM %.3f", d.Seconds())); err != nil {
		return 0, err
	}
	counts, err := c.readFloat()
	if err != nil {
		return 0, err
	}
	return counts / d.Seconds(), nil
}

// TimedFrequencyRatio measures the frequency ratio over d
func (c *Counter) TimedFrequencyRatio(d time.Duration) (float64, error) {
	if err := c.Write(fmt.Sprintf(":FREQ:ARM:STOP:TIM %.3f", d.Seconds())); err != nil {
		return 0, err
	}
	return c.readFloat()
}

// StartTotalize starts counting
func (c *Counter) StartTotalize() error {
	return c.Write(":INIT:IMM")
}

// StopTotalize stops counting and returns the total
func (c *Counter) StopTotalize() (int, error) {
	if err := c.Write(":ABORT"); err != nil {
		return 0, err
	}
	resp, err := c.Query(":FETCH?")
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(resp), 64)
	return int(f), err
}

// CountsVsTime sets the trigger level and records the count rate over
// windows of d for a total of total
func (c *Counter) CountsVsTime(ctx context.Context, volts float64, d, total time.Duration) (oscilloscope.Recording, error) {
	rec := oscilloscope.Recording{Name: "count rate (1/s)"}
	if err := c.SetTrigger(1, volts, false, false); err != nil {
		return rec, err
	}
	if d <= 0 {
		return rec, &scpi.InvalidArgument{Setting: "counting time", Value: d, Domain: "positive"}
	}
	n := int(total / d)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return rec, err
		}
		rate, err := c.TimedCount(d)
		if err != nil {
			return rec, err
		}
		rec.Append(time.Now(), rate)
	}
	return rec, nil
}

// ScanTriggerVoltage measures the count rate at each trigger level
func (c *Counter) ScanTriggerVoltage(ctx context.Context, volts []float64, d time.Duration) ([]float64, error) {
	rates := make([]float64, 0, len(volts))
	for _, v := range volts {
		if err := ctx.Err(); err != nil {
			return rates, err
		}
		if err := c.SetTrigger(1, v, false, false); err != nil {
			return rates, err
		}
		time.Sleep(100 * time.Millisecond)
		rate, err := c.TimedCount(d)
		if err != nil {
			return rates, err
		}
		rates = append(rates, rate)
	}
	return rates, nil
}
