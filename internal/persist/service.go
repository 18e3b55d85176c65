package persist

import "context"

// Service joins a player store and a game store into one Store.
type Service struct {
	players PlayerStore
	games   GameStore
}

func NewService(players PlayerStore, games GameStore) *Service {
	return &Service{players: players, games: games}
}

func (s *Service) FindOrCreatePlayer(ctx context.Context, key, name string) (*Player, error) {
	return s.players.FindOrCreatePlayer(ctx, key, name)
}

func (s *Service) FindPlayer(ctx context.Context, key string) (*Player, error) {
	return s.players.FindPlayer(ctx, key)
}

func (s *Service) IncrementStatistics(ctx context.Context, playerID string, d StatsDelta) error {
	return s.players.IncrementStatistics(ctx, playerID, d)
}

func (s *Service) RecordFinishedGame(ctx context.Context, rec GameRecord) error {
	return s.games.RecordFinishedGame(ctx, rec)
}
