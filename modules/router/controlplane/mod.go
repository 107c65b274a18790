package router

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/yanet-platform/softrouter/common/go/device"
	"github.com/yanet-platform/softrouter/modules/router/internal/bootstrap"
	"github.com/yanet-platform/softrouter/modules/router/internal/discovery/neigh"
	"github.com/yanet-platform/softrouter/modules/router/internal/rib"
)

// ErrUnknownInterface is returned when a static route refers to an interface
// the device does not have.
var ErrUnknownInterface = errors.New("unknown interface")

// RouterModule is a router bound to a device, bootstrapped from its
// configuration.
type RouterModule struct {
	cfg    *Config
	router *Router
	log    *zap.SugaredLogger
}

// NewRouterModule loads the bootstrap files and creates the router.
func NewRouterModule(cfg *Config, dev device.Device, log *zap.SugaredLogger, options ...Option) (*RouterModule, error) {
	log = log.With(zap.String("module", "router"))

	routes, neighbours, err := Load(cfg)
	if err != nil {
		return nil, err
	}

	table := rib.NewRIB(log)
	for _, route := range routes {
		if !slices.ContainsFunc(dev.Interfaces(), func(iface device.Interface) bool { return iface.Name == route.Interface }) {
			return nil, fmt.Errorf("route %s: %w %q", route.Prefix, ErrUnknownInterface, route.Interface)
		}
		if err := table.Insert(route); err != nil {
			return nil, fmt.Errorf("failed to insert route %s: %w", route.Prefix, err)
		}
	}

	options = append([]Option{WithLog(log)}, options...)
	router := NewRouter(cfg, dev, table, neigh.NewCache(neighbours, log), options...)

	if err := router.Bootstrap(); err != nil {
		return nil, fmt.Errorf("failed to bootstrap router: %w", err)
	}

	m := &RouterModule{
		cfg:    cfg,
		router: router,
		log:    log,
	}
	m.logTables()

	return m, nil
}

// Load reads the bootstrap files named in the configuration.
//
// Missing paths yield empty tables.
func Load(cfg *Config) ([]rib.Route, []neigh.NeighbourEntry, error) {
	routes := []rib.Route{}
	if cfg.RouteTable != "" {
		r, err := bootstrap.LoadRoutes(cfg.RouteTable)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load route table: %w", err)
		}
		routes = r
	}

	neighbours := []neigh.NeighbourEntry{}
	if cfg.ARPCache != "" {
		n, err := bootstrap.LoadNeighbours(cfg.ARPCache)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load ARP cache: %w", err)
		}
		neighbours = n
	}

	return routes, neighbours, nil
}

func (m *RouterModule) Name() string {
	return "router"
}

// Router returns the frame handler of this module.
func (m *RouterModule) Router() *Router {
	return m.router
}

// Run runs the module until the specified context is canceled.
func (m *RouterModule) Run(ctx context.Context) error {
	m.log.Infow("starting router", zap.Bool("rip", m.router.DynamicRouting()))
	defer m.log.Infow("stopped router")

	return m.router.Run(ctx)
}

func (m *RouterModule) logTables() {
	routes := m.router.Routes()
	m.log.Infof("loaded %d routes", len(routes))
	for _, route := range routes {
		m.log.Infof("  %s", route)
	}

	neighbours := m.router.Neighbours()
	m.log.Infof("loaded %d neighbours", len(neighbours))
	for _, entry := range neighbours {
		m.log.Infof("  %s", entry)
	}
}
