package domain

import (
	"context"
	"sort"

	"github.com/google/uuid"
)

// PresenceReader answers whether a user currently has a live channel.
type PresenceReader interface {
	IsOnline(userID uuid.UUID) bool
}

// Batch groups a role's users by graduation year.
type Batch struct {
	BatchYear int             `json:"batch_year"`
	Users     []*UserResponse `json:"users"`
}

type DirectoryService struct {
	users    Directory
	presence PresenceReader
}

func NewDirectoryService(users Directory, presence PresenceReader) *DirectoryService {
	return &DirectoryService{
		users:    users,
		presence: presence,
	}
}

// GetProfile returns a user with the live presence flag applied.
func (s *DirectoryService) GetProfile(ctx context.Context, id uuid.UUID) (*UserResponse, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	resp := user.ToResponse()
	if s.presence != nil {
		resp.IsOnline = s.presence.IsOnline(id)
	}
	return resp, nil
}

// ListBatches returns every user of role grouped by batch year, oldest first.
// Users without a batch year are grouped under 0.
func (s *DirectoryService) ListBatches(ctx context.Context, role Role) ([]Batch, error) {
	users, err := s.users.ListUsersByRole(ctx, role)
	if err != nil {
		return nil, err
	}

	grouped := make(map[int][]*UserResponse)
	for _, u := range users {
		resp := u.ToResponse()
		if s.presence != nil {
			resp.IsOnline = s.presence.IsOnline(u.ID)
		}
		grouped[resp.BatchYear] = append(grouped[resp.BatchYear], resp)
	}

	batches := make([]Batch, 0, len(grouped))
	for year, members := range grouped {
		batches = append(batches, Batch{BatchYear: year, Users: members})
	}
	sort.Slice(batches, func(i, j int) bool {
		return batches[i].BatchYear < batches[j].BatchYear
	})

	return batches, nil
}
