package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/amcc/golab/agilent"
	"github.com/amcc/golab/ando"
	"github.com/amcc/golab/comm"
	"github.com/amcc/golab/fibercontrol"
	"github.com/amcc/golab/generichttp"
	"github.com/amcc/golab/generichttp/ascii"
	"github.com/amcc/golab/generichttp/tmc"
	"github.com/amcc/golab/jds"
	"github.com/amcc/golab/lecroy"
	"github.com/amcc/golab/perkinelmer"
	"github.com/amcc/golab/scpi"
	"github.com/amcc/golab/server"
	"github.com/amcc/golab/server/middleware/locker"
	"github.com/amcc/golab/srs"
	"github.com/amcc/golab/switchino"
	"github.com/amcc/golab/tektronix"
	"github.com/amcc/golab/thorlabs"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v2"
)

// Prologix holds the address of the GPIB gateway.  GPIB nodes are routed
// through it.
type Prologix struct {
	// Addr is host[:port] of a GPIB-ETHERNET controller or the serial port
	// of a GPIB-USB controller
	Addr string `yaml:"Addr" koanf:"Addr"`

	// Serial, if not empty, finds the GPIB-USB controller by its USB serial
	// number and takes precedence over Addr
	Serial string `yaml:"Serial" koanf:"Serial"`
}

// Node is one instrument (or one module of a mainframe) served over HTTP
type Node struct {
	// Type is the kind of instrument, see help
	Type string `yaml:"Type" koanf:"Type"`

	// Endpoint is the path the routes of this node are served under
	// ex. Endpoint="/omc/laser" will produce routes of /omc/laser/power, etc.
	Endpoint string `yaml:"Endpoint" koanf:"Endpoint"`

	// Addr is the VISA resource string of the instrument, e.g. GPIB0::5::INSTR,
	// TCPIP::192.168.100.12::INSTR or ASRL3::INSTR.  Nodes sharing a
	// mainframe share an Addr.
	Addr string `yaml:"Addr" koanf:"Addr"`

	// Timeout is the per-operation timeout, e.g. 3s.  Blank uses the default.
	Timeout string `yaml:"Timeout" koanf:"Timeout"`

	// Slot is the mainframe slot (Ando) or port (SIM900) of a module, or the
	// output channel of a function generator
	Slot int `yaml:"Slot" koanf:"Slot"`

	// Head is the power meter head or switch bank of an Ando module, 0 if none
	Head int `yaml:"Head" koanf:"Head"`

	// Args holds any type specific settings, e.g. Dialect: rigol
	Args map[string]interface{} `yaml:"Args" koanf:"Args"`
}

// Config is a struct that holds the initialization parameters for various
// HTTP adapted devices.  It is to be populated by a yaml unmarshal call.
type Config struct {
	// Addr is the address to listen at
	Addr string `yaml:"Addr" koanf:"Addr"`

	// Mock replaces every instrument with a scripted mock
	Mock bool `yaml:"Mock" koanf:"Mock"`

	// LogLevel is one of trace, debug, info, warn, error
	LogLevel string `yaml:"LogLevel" koanf:"LogLevel"`

	Prologix Prologix `yaml:"Prologix" koanf:"Prologix"`

	// Nodes is the list of nodes to set up
	Nodes []Node `yaml:"Nodes" koanf:"Nodes"`
}

// LoadYaml converts a (path to a) yaml file into a Config struct
func LoadYaml(path string) (Config, error) {
	cfg := Config{}
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	err = yaml.NewDecoder(f).Decode(&cfg)
	return cfg, err
}

// Lab holds the open connections of a running server.  Sessions and
// mainframes are shared by every node with the same address.
type Lab struct {
	cfg      Config
	gateway  *comm.Gateway
	sessions map[string]*comm.Session
	ando     map[string]*ando.Mainframe
	sim900   map[string]*srs.Mainframe
	mocks    map[string]*comm.Mock
}

// NewLab prepares to open the nodes of c
func NewLab(c Config) *Lab {
	return &Lab{
		cfg:      c,
		sessions: map[string]*comm.Session{},
		ando:     map[string]*ando.Mainframe{},
		sim900:   map[string]*srs.Mainframe{},
		mocks:    map[string]*comm.Mock{},
	}
}

// newMock returns a mock which answers every query with 0
func newMock() *comm.Mock {
	m := comm.NewMock()
	m.Fallback = "0"
	return m
}

// Open returns the session to addr, opening it on first use
func (l *Lab) Open(addr string, opts ...comm.Option) (*comm.Session, error) {
	if s, ok := l.sessions[addr]; ok {
		return s, nil
	}
	if l.cfg.Mock {
		m := newMock()
		l.mocks[addr] = m
		opts = append(opts, comm.WithMock(m))
	} else if res, err := comm.ParseResource(addr); err == nil && res.Kind == comm.KindGPIB {
		g, err := l.Gateway()
		if err != nil {
			return nil, err
		}
		opts = append(opts, comm.WithGateway(g))
	}
	s, err := comm.Open(addr, opts...)
	if err != nil {
		return nil, err
	}
	l.sessions[addr] = s
	return s, nil
}

// Mock returns the mock standing in for the instrument at addr, nil if
// the lab is not mocked or addr has not been opened
func (l *Lab) Mock(addr string) *comm.Mock {
	return l.mocks[addr]
}

// Gateway returns the Prologix gateway, opening it on first use
func (l *Lab) Gateway() (*comm.Gateway, error) {
	if l.gateway != nil {
		return l.gateway, nil
	}
	addr := l.cfg.Prologix.Addr
	if l.cfg.Prologix.Serial != "" {
		addr = "usb:" + l.cfg.Prologix.Serial
	}
	if addr == "" {
		return nil, comm.ErrNoGateway
	}
	g, err := comm.OpenGateway(addr, 0)
	if err != nil {
		return nil, err
	}
	l.gateway = g
	return g, nil
}

// Ando returns the AQ8204 mainframe at addr
func (l *Lab) Ando(addr string, opts ...comm.Option) (*ando.Mainframe, error) {
	if mf, ok := l.ando[addr]; ok {
		return mf, nil
	}
	s, err := l.Open(addr, append(opts, comm.WithPacing(ando.Pacing))...)
	if err != nil {
		return nil, err
	}
	mf := ando.NewMainframe(s)
	l.ando[addr] = mf
	return mf, nil
}

// SIM900 returns the SIM900 mainframe at addr
func (l *Lab) SIM900(addr string, opts ...comm.Option) (*srs.Mainframe, error) {
	if mf, ok := l.sim900[addr]; ok {
		return mf, nil
	}
	s, err := l.Open(addr, opts...)
	if err != nil {
		return nil, err
	}
	mf, err := srs.NewMainframe(s)
	if err != nil {
		return nil, err
	}
	l.sim900[addr] = mf
	return mf, nil
}

// Close closes every session and the gateway
func (l *Lab) Close() error {
	var err error
	for _, s := range l.sessions {
		err = multierr.Append(err, s.Close())
	}
	if l.gateway != nil {
		err = multierr.Append(err, l.gateway.Close())
	}
	return err
}

func argString(n Node, key, def string) string {
	if v, ok := n.Args[key]; ok {
		return strings.ToLower(fmt.Sprint(v))
	}
	return def
}

func dialect(n Node) (agilent.Dialect, error) {
	switch argString(n, "Dialect", "agilent") {
	case "agilent", "33522a", "keysight":
		return agilent.Agilent33522A, nil
	case "rigol", "dg5000":
		return agilent.RigolDG5000, nil
	default:
		return 0, fmt.Errorf("unknown function generator dialect %v", n.Args["Dialect"])
	}
}

func awgDialect(typ string, n Node) (tektronix.Dialect, error) {
	if typ == "tektronix-awg" {
		typ = argString(n, "Dialect", "awg610")
	}
	switch typ {
	case "awg610", "610":
		return tektronix.AWG610, nil
	case "awg7101", "7101":
		return tektronix.AWG7101, nil
	case "awg7000", "7000", "awg7122":
		return tektronix.AWG7000, nil
	default:
		return 0, fmt.Errorf("unknown AWG dialect %s", typ)
	}
}

// Build opens the instrument of a node and returns its HTTP wrapper
func (l *Lab) Build(n Node) (server.HTTPer, error) {
	var opts []comm.Option
	if n.Timeout != "" {
		d, err := time.ParseDuration(n.Timeout)
		if err != nil {
			return nil, errors.Wrapf(err, "node %s timeout", n.Endpoint)
		}
		opts = append(opts, comm.WithTimeout(d))
	}
	var (
		inst scpi.Instrument
		wrap = generichttp.NewWrapper()
		rt   = wrap.RT()
	)
	typ := strings.ToLower(n.Type)
	switch typ {
	case "ando-attenuator", "ando-laser", "ando-powermeter", "ando-switch":
		mf, err := l.Ando(n.Addr, opts...)
		if err != nil {
			return nil, err
		}
		switch typ {
		case "ando-attenuator":
			inst = ando.NewAttenuator(mf, n.Slot)
		case "ando-laser":
			laser := ando.NewLaser(mf, n.Slot)
			if err = laser.StdInit(); err != nil {
				return nil, err
			}
			inst = laser
		case "ando-powermeter":
			pm := ando.NewPowerMeter(mf, n.Slot, n.Head)
			// StdInit verifies the unit, which a mock cannot echo
			if !l.cfg.Mock {
				if err = pm.StdInit(); err != nil {
					return nil, err
				}
			}
			inst = pm
		case "ando-switch":
			inst = ando.NewSwitch(mf, n.Slot, n.Head)
		}
		tmc.HTTPOptical(inst, rt)

	case "sim921", "sim922", "sim970":
		mf, err := l.SIM900(n.Addr, opts...)
		if err != nil {
			return nil, err
		}
		switch typ {
		case "sim921":
			bridge := srs.NewSIM921(mf, n.Slot)
			tmc.HTTPResistanceBridge(bridge, rt)
			inst = bridge
		case "sim922":
			diodes := srs.NewSIM922(mf, n.Slot)
			tmc.HTTPThermometer(diodes, rt)
			inst = diodes
		case "sim970":
			volts := srs.NewSIM970(mf, n.Slot)
			tmc.HTTPVoltmeter(volts, rt)
			inst = volts
		}

	case "lecroy", "lecroy-scope":
		if n.Timeout == "" {
			opts = append(opts, comm.WithTimeout(lecroy.DefaultTimeout))
		}
		s, err := l.Open(n.Addr, opts...)
		if err != nil {
			return nil, err
		}
		scope, err := lecroy.New(s)
		if err != nil {
			return nil, err
		}
		tmc.HTTPOscilloscope(scope, rt)
		inst = scope

	case "function-generator", "agilent-function-generator":
		d, err := dialect(n)
		if err != nil {
			return nil, err
		}
		s, err := l.Open(n.Addr, opts...)
		if err != nil {
			return nil, err
		}
		fg := agilent.NewFunctionGenerator(s, d)
		ch := n.Slot
		if ch == 0 {
			ch = 1
		}
		tmc.HTTPFunctionGenerator(fg, ch, rt)
		inst = fg

	case "awg610", "awg7101", "awg7000", "tektronix-awg":
		d, err := awgDialect(typ, n)
		if err != nil {
			return nil, err
		}
		s, err := l.Open(n.Addr, opts...)
		if err != nil {
			return nil, err
		}
		awg := tektronix.NewAWG(s, d)
		tmc.HTTPAWG(awg, rt)
		inst = awg

	case "89410a", "vsa":
		s, err := l.Open(n.Addr, opts...)
		if err != nil {
			return nil, err
		}
		// the slot picks the trace
		trace := n.Slot
		if trace == 0 {
			trace = 1
		}
		vsa, err := agilent.NewVSA(s, trace)
		if err != nil {
			return nil, err
		}
		tmc.HTTPSignalAnalyzer(vsa, rt)
		inst = vsa

	case "fieldfox":
		if n.Timeout == "" {
			opts = append(opts, comm.WithTimeout(agilent.FieldFoxTimeout))
		}
		s, err := l.Open(n.Addr, opts...)
		if err != nil {
			return nil, err
		}
		ff := agilent.NewFieldFox(s)
		tmc.HTTPNetworkAnalyzer(ff, rt)
		inst = ff

	default:
		s, err := l.Open(n.Addr, append(opts, serialOptions(typ)...)...)
		if err != nil {
			return nil, err
		}
		switch typ {
		case "counter":
			c := agilent.NewCounter(s)
			if err = c.BasicSetup(); err != nil {
				return nil, err
			}
			tmc.HTTPCounter(c, rt)
			inst = c
		case "multimeter":
			m := agilent.NewMultimeter(s)
			tmc.HTTPMultimeter(m, rt)
			inst = m
		case "pm100d":
			pm := thorlabs.NewPM100D(s)
			tmc.HTTPOptical(pm, rt)
			rt[server.Get("/average-count")] = generichttp.GetInt(pm.AverageCount)
			rt[server.Post("/average-count")] = generichttp.SetInt(pm.SetAverageCount)
			inst = pm
		case "lfltm":
			laser := thorlabs.NewLFLTM(s)
			tmc.HTTPOptical(laser, rt)
			inst = laser
		case "lightwave", "8164a":
			lw := agilent.NewLightwave(s)
			tmc.HTTPLightwave(lw, rt)
			inst = lw
		case "ha9":
			att := jds.NewHA9(s)
			tmc.HTTPOptical(att, rt)
			inst = att
		case "lockin":
			lockin := perkinelmer.NewLockin7280(s)
			tmc.HTTPLockin(lockin, rt)
			inst = lockin
		case "mpc101":
			pc := fibercontrol.NewMPC101(s)
			tmc.HTTPPolarizationController(pc, rt)
			inst = pc
		case "switchino":
			sw := switchino.New(s)
			tmc.HTTPRFSwitch(sw, rt)
			inst = sw
		default:
			return nil, fmt.Errorf("type %s not understood", n.Type)
		}
	}
	ascii.InjectRawComm(wrap, inst)
	return wrap, nil
}

// serialOptions holds the serial settings of instruments that are not 9600 8N1
func serialOptions(typ string) []comm.Option {
	switch typ {
	case "lfltm":
		t := thorlabs.LFLTMTerminators
		return []comm.Option{comm.WithSerial(thorlabs.LFLTMSerial()), comm.WithTerminators(t.Tx, t.Rx)}
	default:
		return nil
	}
}

// BuildMux opens every node of the lab and mounts its routes, with a lock,
// at its endpoint.  The root serves /endpoints, which returns a map of
// every endpoint to its routes as JSON.
func BuildMux(l *Lab) (chi.Router, error) {
	root := chi.NewRouter()
	root.Use(middleware.Logger)
	supergraph := map[string][]string{}
	locks := map[string]*locker.Locker{}

	for _, node := range l.cfg.Nodes {
		httper, err := l.Build(node)
		if err != nil {
			return nil, errors.Wrapf(err, "node %s (%s at %s)", node.Endpoint, node.Type, node.Addr)
		}
		// prepare the URL, "omc/nkt" => "/omc/nkt"
		hndlS := generichttp.SubMuxSanitize(node.Endpoint)
		if _, dup := supergraph[hndlS]; dup {
			return nil, fmt.Errorf("endpoint %s used by more than one node", hndlS)
		}

		// modules of one mainframe share the address, and the lock
		lock, ok := locks[node.Addr]
		if !ok {
			lock = locker.New()
			locks[node.Addr] = lock
		}
		locker.Inject(httper, lock)
		supergraph[hndlS] = httper.RT().Endpoints()

		r := chi.NewRouter()
		r.Use(lock.Check)
		httper.RT().Bind(r)
		root.Mount(hndlS, r)
		log.Info().Str("endpoint", hndlS).Str("type", node.Type).Str("addr", node.Addr).Msg("node ready")
	}
	root.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		err := json.NewEncoder(w).Encode(supergraph)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	return root, nil
}
