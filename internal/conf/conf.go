// Package conf reads and validates incastgen's configuration: the
// line-oriented key/value file (§6 of the spec) plus the handful of
// process-level knobs the CLI contributes (seed, log prefix, debug).
package conf

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Server is one backend endpoint the dispatcher fans requests out to.
type Server struct {
	Addr string
	Port int
}

// Dist is a weighted discrete distribution: Values[i] has weight Weights[i].
// Used for fanout, DSCP (service class), and per-flow rate.
type Dist struct {
	Values  []int
	Weights []int
}

// Total returns the sum of all weights.
func (d Dist) Total() int {
	total := 0
	for _, w := range d.Weights {
		total += w
	}
	return total
}

// Run holds the process-level knobs that do not live in the config file:
// the CLI contributes these, and main folds them into *Conf so the rest of
// the program depends on a single struct.
type Run struct {
	LogPrefix           string
	Seed                int64
	Debug               bool
	InitPoolConnections int
	ReadBufferBytes     int
}

// Conf is the fully validated, defaulted configuration driving one run.
type Conf struct {
	Servers         []Server
	LoadMbps        float64
	NumReqs         int
	ReqSizeDistPath string
	Fanout          Dist
	Service         Dist
	Rate            Dist
	Run             Run
}

// LoadFromFile reads the key/value configuration file at path, applies
// defaults to omitted optional distributions, and validates the result.
func LoadFromFile(path string) (*Conf, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("conf: open %s: %w", path, err)
	}
	defer f.Close()

	cfg := &Conf{}
	var haveLoad, haveNumReqs, haveDist bool

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		key := fields[0]

		switch key {
		case "server":
			if len(fields) != 3 {
				return nil, fmt.Errorf("conf: line %d: server requires <ip> <port>", lineNo)
			}
			port, err := strconv.Atoi(fields[2])
			if err != nil {
				return nil, fmt.Errorf("conf: line %d: invalid server port %q: %w", lineNo, fields[2], err)
			}
			cfg.Servers = append(cfg.Servers, Server{Addr: fields[1], Port: port})

		case "load":
			if haveLoad {
				return nil, fmt.Errorf("conf: line %d: duplicate load key", lineNo)
			}
			if len(fields) != 2 {
				return nil, fmt.Errorf("conf: line %d: load requires <value>Mbps", lineNo)
			}
			if !strings.HasSuffix(fields[1], "Mbps") {
				return nil, fmt.Errorf("conf: line %d: load value %q must have an Mbps suffix", lineNo, fields[1])
			}
			val := strings.TrimSuffix(fields[1], "Mbps")
			load, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return nil, fmt.Errorf("conf: line %d: invalid load %q: %w", lineNo, fields[1], err)
			}
			cfg.LoadMbps = load
			haveLoad = true

		case "num_reqs":
			if haveNumReqs {
				return nil, fmt.Errorf("conf: line %d: duplicate num_reqs key", lineNo)
			}
			if len(fields) != 2 {
				return nil, fmt.Errorf("conf: line %d: num_reqs requires <n>", lineNo)
			}
			n, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, fmt.Errorf("conf: line %d: invalid num_reqs %q: %w", lineNo, fields[1], err)
			}
			cfg.NumReqs = n
			haveNumReqs = true

		case "req_size_dist":
			if haveDist {
				return nil, fmt.Errorf("conf: line %d: duplicate req_size_dist key", lineNo)
			}
			if len(fields) != 2 {
				return nil, fmt.Errorf("conf: line %d: req_size_dist requires <path>", lineNo)
			}
			cfg.ReqSizeDistPath = fields[1]
			haveDist = true

		case "fanout":
			v, w, err := parseValueWeight(lineNo, key, fields)
			if err != nil {
				return nil, err
			}
			cfg.Fanout.Values = append(cfg.Fanout.Values, v)
			cfg.Fanout.Weights = append(cfg.Fanout.Weights, w)

		case "service":
			v, w, err := parseValueWeight(lineNo, key, fields)
			if err != nil {
				return nil, err
			}
			cfg.Service.Values = append(cfg.Service.Values, v)
			cfg.Service.Weights = append(cfg.Service.Weights, w)

		case "rate":
			v, w, err := parseRateValueWeight(lineNo, fields)
			if err != nil {
				return nil, err
			}
			cfg.Rate.Values = append(cfg.Rate.Values, v)
			cfg.Rate.Weights = append(cfg.Rate.Weights, w)

		default:
			return nil, fmt.Errorf("conf: line %d: invalid key %q", lineNo, key)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("conf: reading %s: %w", path, err)
	}

	if !haveLoad {
		return nil, fmt.Errorf("conf: missing required key: load")
	}
	if !haveNumReqs {
		return nil, fmt.Errorf("conf: missing required key: num_reqs")
	}
	if !haveDist {
		return nil, fmt.Errorf("conf: missing required key: req_size_dist")
	}

	cfg.setDefaults()
	if errs := cfg.validate(); len(errs) > 0 {
		return nil, fmt.Errorf("conf: invalid configuration: %w", joinErrors(errs))
	}
	return cfg, nil
}

func parseValueWeight(lineNo int, key string, fields []string) (int, int, error) {
	if len(fields) != 3 {
		return 0, 0, fmt.Errorf("conf: line %d: %s requires <value> <weight>", lineNo, key)
	}
	v, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, fmt.Errorf("conf: line %d: invalid %s value %q: %w", lineNo, key, fields[1], err)
	}
	w, err := strconv.Atoi(fields[2])
	if err != nil {
		return 0, 0, fmt.Errorf("conf: line %d: invalid %s weight %q: %w", lineNo, key, fields[2], err)
	}
	return v, w, nil
}

// parseRateValueWeight parses "rate <Mbps>Mbps <weight>", matching the
// original C client's sscanf(line, "%s %dMbps %d", ...): the rate value,
// unlike fanout and service, carries a literal "Mbps" suffix glued onto the
// number (the same suffix the "load" key requires).
func parseRateValueWeight(lineNo int, fields []string) (int, int, error) {
	if len(fields) != 3 {
		return 0, 0, fmt.Errorf("conf: line %d: rate requires <value>Mbps <weight>", lineNo)
	}
	valField := fields[1]
	if !strings.HasSuffix(valField, "Mbps") {
		return 0, 0, fmt.Errorf("conf: line %d: rate value %q must have an Mbps suffix", lineNo, valField)
	}
	v, err := strconv.Atoi(strings.TrimSuffix(valField, "Mbps"))
	if err != nil {
		return 0, 0, fmt.Errorf("conf: line %d: invalid rate value %q: %w", lineNo, valField, err)
	}
	w, err := strconv.Atoi(fields[2])
	if err != nil {
		return 0, 0, fmt.Errorf("conf: line %d: invalid rate weight %q: %w", lineNo, fields[2], err)
	}
	return v, w, nil
}

func (c *Conf) setDefaults() {
	if len(c.Fanout.Values) == 0 {
		c.Fanout = Dist{Values: []int{1}, Weights: []int{100}}
	}
	if len(c.Service.Values) == 0 {
		c.Service = Dist{Values: []int{0}, Weights: []int{100}}
	}
	if len(c.Rate.Values) == 0 {
		c.Rate = Dist{Values: []int{0}, Weights: []int{100}}
	}
	if c.Run.InitPoolConnections == 0 {
		c.Run.InitPoolConnections = 4 // matches the original TG_PAIR_INIT_CONN
	}
	if c.Run.LogPrefix == "" {
		c.Run.LogPrefix = "log"
	}
	if c.Run.ReadBufferBytes == 0 {
		// Scale with CPU count, same spirit as the teacher's TCP buffer
		// default: 4KB per core, clamped to a sane range.
		c.Run.ReadBufferBytes = clampInt(sysCPUCount()*4*1024, 16*1024, 256*1024)
	}
}

func (c *Conf) validate() []error {
	var errs []error

	if len(c.Servers) < 1 {
		errs = append(errs, fmt.Errorf("configuration file should provide at least one server"))
	}
	if c.LoadMbps <= 0 {
		errs = append(errs, fmt.Errorf("load must be > 0 Mbps"))
	}
	if c.NumReqs < 1 {
		errs = append(errs, fmt.Errorf("num_reqs must be >= 1"))
	}
	if c.ReqSizeDistPath == "" {
		errs = append(errs, fmt.Errorf("req_size_dist must name a file"))
	}

	errs = append(errs, validateDist("fanout", c.Fanout, 1, 1<<30)...)
	errs = append(errs, validateDist("service", c.Service, 0, 63)...)
	errs = append(errs, validateDist("rate", c.Rate, 0, 1<<30)...)

	if c.Run.InitPoolConnections < 1 {
		errs = append(errs, fmt.Errorf("init pool connections must be >= 1"))
	}

	return errs
}

func validateDist(name string, d Dist, lo, hi int) []error {
	var errs []error
	if len(d.Values) != len(d.Weights) {
		errs = append(errs, fmt.Errorf("%s: values/weights length mismatch", name))
		return errs
	}
	for i, v := range d.Values {
		if v < lo || v > hi {
			errs = append(errs, fmt.Errorf("%s: value %d out of range [%d,%d]", name, v, lo, hi))
		}
		if d.Weights[i] <= 0 {
			errs = append(errs, fmt.Errorf("%s: weight for value %d must be > 0", name, v))
		}
	}
	if d.Total() <= 0 {
		errs = append(errs, fmt.Errorf("%s: total weight must be > 0", name))
	}
	return errs
}

func joinErrors(errs []error) error {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}
