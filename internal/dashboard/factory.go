package dashboard

import "go.uber.org/zap"

// Factory creates screens sharing the same backend collaborators.
type Factory struct {
	logger  *zap.Logger
	feed    totalsFeed
	gateway topWalletsGateway
	history totalsHistory
	opts    Options
}

// NewFactory creates a screen factory. history may be nil.
func NewFactory(logger *zap.Logger, feed totalsFeed, gateway topWalletsGateway, history totalsHistory, opts Options) *Factory {
	return &Factory{
		logger:  logger.Named("dashboard"),
		feed:    feed,
		gateway: gateway,
		history: history,
		opts:    opts.withDefaults(),
	}
}

// NewScreen creates an unopened screen.
func (f *Factory) NewScreen() *Screen {
	return NewScreen(f.logger, f.feed, f.gateway, f.history, f.opts)
}
