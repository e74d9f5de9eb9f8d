package integration

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/Fantom-foundation/lachesis-base/kvdb"
	"github.com/Fantom-foundation/lachesis-base/kvdb/leveldb"
	"github.com/Fantom-foundation/lachesis-base/kvdb/memorydb"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	"github.com/rony4d/go-gauge-funder/emission"
	"github.com/rony4d/go-gauge-funder/emission/genesis"
	"github.com/rony4d/go-gauge-funder/gauge"
	"github.com/rony4d/go-gauge-funder/inter"
	"github.com/rony4d/go-gauge-funder/ledger"
	"github.com/rony4d/go-gauge-funder/oracle"
	"github.com/rony4d/go-gauge-funder/recorder"
	"github.com/rony4d/go-gauge-funder/registry"
)

// Oracle kinds.
const (
	OracleTable    = "table"
	OracleConstant = "constant"
)

// Config is everything needed to assemble a running set of funders.
type Config struct {
	DataDir   string
	DBBackend string
	CacheMB   int
	Handles   int

	Rules    emission.Rules
	Registry registry.Config

	OracleKind     string
	ConstantWeight *uint256.Int

	// JournalPath enables the SQLite checkpoint journal when non-empty.
	JournalPath string

	Clock gauge.Clock
}

// Node owns the database and every component opened on top of it.
type Node struct {
	cfg Config

	DB       kvdb.Store
	Factory  *registry.Factory
	Oracle   gauge.WeightOracle
	Weights  *oracle.Table // nil unless the table oracle is configured
	Recorder recorder.Recorder

	mu       sync.Mutex
	funders  map[common.Address]*gauge.Funder
	journals []*recorder.Journal

	log log.Logger
}

// OpenDB opens the configured key-value backend.
func OpenDB(cfg Config) (kvdb.Store, error) {
	switch cfg.DBBackend {
	case "memory":
		return memorydb.New(), nil
	case "leveldb", "":
		path := filepath.Join(cfg.DataDir, "chaindata")
		db, err := leveldb.New(path, cfg.CacheMB, cfg.Handles, func() error { return nil }, func() {})
		if err != nil {
			return nil, fmt.Errorf("open leveldb at %s: %w", path, err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown db backend: %q (valid: leveldb, memory)", cfg.DBBackend)
	}
}

// Open assembles the registry, oracle and journal over a fresh database handle.
func Open(cfg Config) (*Node, error) {
	if err := cfg.Rules.Validate(); err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = inter.Now
	}
	if cfg.Registry.Clock == nil {
		cfg.Registry.Clock = cfg.Clock
	}

	db, err := OpenDB(cfg)
	if err != nil {
		return nil, err
	}
	n := &Node{
		cfg:      cfg,
		DB:       db,
		Recorder: recorder.NewNoopRecorder(),
		funders:  make(map[common.Address]*gauge.Funder),
		log:      log.New("module", "integration"),
	}

	if n.Factory, err = registry.Open(db, cfg.Registry); err != nil {
		db.Close()
		return nil, err
	}

	switch cfg.OracleKind {
	case OracleTable, "":
		n.Weights = oracle.NewTable(db, cfg.Rules.WeekLength, cfg.Clock)
		n.Oracle = n.Weights
	case OracleConstant:
		n.Oracle = oracle.NewConstant(cfg.ConstantWeight)
	default:
		n.Close()
		return nil, fmt.Errorf("unknown oracle: %q (valid: %s, %s)", cfg.OracleKind, OracleTable, OracleConstant)
	}

	if cfg.JournalPath != "" {
		rec, err := recorder.NewSQLiteRecorder(cfg.JournalPath)
		if err != nil {
			n.Close()
			return nil, err
		}
		n.Recorder = rec
	}
	return n, nil
}

// Deploy registers a new instance with the factory and opens it.
func (n *Node) Deploy(receiver common.Address, maxEmissions *uint256.Int) (*gauge.Funder, error) {
	rec, err := n.Factory.Deploy(receiver, maxEmissions)
	if err != nil {
		return nil, err
	}
	return n.open(rec)
}

// Funder opens the deployed instance at addr, reusing an open one.
func (n *Node) Funder(addr common.Address) (*gauge.Funder, error) {
	n.mu.Lock()
	f, ok := n.funders[addr]
	n.mu.Unlock()
	if ok {
		return f, nil
	}
	rec, err := n.Factory.Funder(addr)
	if err != nil {
		return nil, err
	}
	return n.open(rec)
}

// Funders opens every deployed instance.
func (n *Node) Funders() ([]*gauge.Funder, error) {
	recs, err := n.Factory.Funders()
	if err != nil {
		return nil, err
	}
	out := make([]*gauge.Funder, 0, len(recs))
	for _, rec := range recs {
		f, err := n.Funder(rec.Address)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// Genesis returns the inception parameters of a deployed instance.
func (n *Node) Genesis(rec registry.FunderRecord) genesis.Genesis {
	rules := n.cfg.Rules.Copy()
	rules.MaxEmissions = rec.MaxEmissions
	return genesis.New(rules, rec.CreatedAt)
}

func (n *Node) open(rec registry.FunderRecord) (*gauge.Funder, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if f, ok := n.funders[rec.Address]; ok {
		return f, nil
	}
	f, err := gauge.New(gauge.Config{
		Address:   rec.Address,
		Genesis:   n.Genesis(rec),
		Store:     ledger.NewInstance(n.DB, rec.Address),
		Oracle:    n.Oracle,
		Admin:     n.Factory,
		Receivers: n.Factory,
		Clock:     n.cfg.Clock,
	})
	if err != nil {
		return nil, err
	}
	n.funders[rec.Address] = f
	n.log.Info("Funder opened", "funder", rec.Address, "created", rec.CreatedAt, "receiver", rec.Receiver)
	n.journals = append(n.journals, recorder.Follow(f, n.Recorder))
	return f, nil
}

// Close stops journaling and releases the database.
func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, j := range n.journals {
		j.Stop()
	}
	for _, f := range n.funders {
		f.Close()
	}
	var errs []error
	if n.Factory != nil {
		n.Factory.Close()
	}
	if err := n.Recorder.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := n.DB.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
