package cli

import (
	"path/filepath"

	"github.com/dl-alexandre/savegem/internal/logging"
	"github.com/dl-alexandre/savegem/internal/types"
	"github.com/dl-alexandre/savegem/internal/utils"
)

func indexPath(dir string) string {
	return filepath.Join(dir, utils.IndexFileName)
}

func loggingGame(game types.Game, err error) []logging.Field {
	return []logging.Field{logging.F("game", game.Name), logging.F("error", err.Error())}
}

func loggingError(err error) logging.Field {
	return logging.F("error", err.Error())
}
