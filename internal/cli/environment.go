package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/dl-alexandre/savegem/internal/activity"
	"github.com/dl-alexandre/savegem/internal/api"
	"github.com/dl-alexandre/savegem/internal/app"
	"github.com/dl-alexandre/savegem/internal/auth"
	"github.com/dl-alexandre/savegem/internal/config"
	"github.com/dl-alexandre/savegem/internal/events"
	"github.com/dl-alexandre/savegem/internal/games"
	"github.com/dl-alexandre/savegem/internal/index"
	"github.com/dl-alexandre/savegem/internal/remote"
	"github.com/dl-alexandre/savegem/internal/state"
	"github.com/dl-alexandre/savegem/internal/transfer"
	"github.com/dl-alexandre/savegem/internal/types"
	"github.com/dl-alexandre/savegem/internal/utils"
	"github.com/dl-alexandre/savegem/pkg/version"
	"github.com/spf13/afero"
	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// environment is what a command needs to reach the remote store and the
// local state
type environment struct {
	cfg       *config.Config
	configDir string
	profile   string
	auth      *auth.Manager
	app       *app.Context
}

func newAuthManager(configDir string) *auth.Manager {
	mgr := auth.NewManager(configDir)
	if client, ok := auth.ResolveClient(os.Getenv, config.EnvPrefix); ok {
		mgr.SetOAuthConfig(client.ID, client.Secret, utils.DefaultScopes)
	}
	return mgr
}

func openEnvironment(ctx context.Context) (*environment, error) {
	cfg := appConfig
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	configDir, err := config.GetConfigDir()
	if err != nil {
		return nil, err
	}
	if cfg.GameConfigFileID == "" {
		return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeGameConfigFailed,
			"No game configuration document set. Set gameConfigFileId in config.json or SAVEGEM_GAME_CONFIG_FILE_ID.").Build())
	}

	mgr := newAuthManager(configDir)
	if debugTransport != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: debugTransport})
	}
	service, err := drive.NewService(ctx,
		option.WithHTTPClient(mgr.HTTPClient(ctx, globalFlags.Profile)),
		option.WithUserAgent(version.Get().UserAgent()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive service: %w", err)
	}
	client := api.NewClient(service, cfg.MaxRetries, cfg.RetryBaseDelay, logger)
	store := remote.NewDriveStore(client, globalFlags.Profile)

	machineID, err := config.MachineID()
	if err != nil {
		return nil, err
	}

	db, err := index.Open(indexPath(configDir))
	if err != nil {
		logger.Warn("Status index unavailable", loggingError(err))
		db = nil
	}

	fs := afero.NewOsFs()
	appCtx := &app.Context{
		Fs:    fs,
		Store: store,
		Games: games.NewRegistry(store, cfg.GameConfigFileID, games.Options{
			Profile:     globalFlags.Profile,
			Credentials: mgr,
			Logger:      logger,
		}),
		State:    state.NewStore(fs, configDir),
		Activity: activity.NewDirectory(store, activity.Options{
			FileID:      cfg.ActivityFileID,
			MachineID:   machineID,
			DisplayName: cfg.MachineName,
			StaleAfter:  cfg.GetActivityStaleAfter(),
			Logger:      logger,
		}),
		Index:         db,
		ChangesPort:   cfg.ChangesPort,
		ProcessesPort: cfg.ProcessesPort,
		Logger:        logger,
	}

	return &environment{
		cfg:       cfg,
		configDir: configDir,
		profile:   globalFlags.Profile,
		auth:      mgr,
		app:       appCtx,
	}, nil
}

// Close releases the status index
func (e *environment) Close() {
	if e.app.Index != nil {
		_ = e.app.Index.Close()
	}
}

// requireAuth fails fast for one-shot commands
func (e *environment) requireAuth() error {
	if e.auth.IsAuthenticated(e.profile) {
		return nil
	}
	return utils.NewAppError(utils.NewCLIError(utils.ErrCodeAuthRequired,
		"Not signed in. Run 'savegem auth login' first.").WithContext("profile", e.profile).Build())
}

// transfers builds a downloader and uploader sharing ch
func (e *environment) transfers(ch *events.Channel) (*transfer.Downloader, *transfer.Uploader) {
	return transfer.NewDownloader(e.app.Fs, e.app.Store, ch, logger),
		transfer.NewUploader(e.app.Fs, e.app.Store, ch, logger, nil)
}

// transferError turns a transfer failure into a CLI error carrying the
// failure kind
func transferError(game types.Game, err error) types.CLIError {
	var terr *transfer.Error
	if !errors.As(err, &terr) {
		return utils.AsCLIError(err)
	}

	code := utils.ErrCodeTransferFailed
	switch terr.Kind {
	case events.KindSavesDirectoryMissing:
		code = utils.ErrCodeSavesMissing
	case events.KindDriveMetadataMissing:
		code = utils.ErrCodeDriveMetadata
	}
	return utils.NewCLIError(code, terr.Error()).
		WithContext("game", game.Name).
		WithContext("kind", string(terr.Kind)).
		Build()
}
