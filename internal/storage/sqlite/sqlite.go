package sqlite

import (
	"context"
	"errors"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/fenggwsx/StudyChat/internal/config"
	"github.com/fenggwsx/StudyChat/internal/storage"
)

// Store is a GORM-backed SQLite implementation of storage.Store.
type Store struct {
	db *gorm.DB
}

type roomModel struct {
	ID         string `gorm:"primaryKey"`
	Name       string `gorm:"uniqueIndex"`
	Admin      string
	SecretHash string
	Default    bool
	CreatedAt  time.Time
}

type messageModel struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	RoomID    string `gorm:"index"`
	Seq       uint64
	Author    string
	AuthorID  string
	Body      string
	CreatedAt time.Time
}

// NewStore opens a SQLite database at the provided path.
func NewStore(cfg config.DatabaseConfig) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Migrate applies schema updates.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&roomModel{}, &messageModel{})
}

// CreateRoom stores a new room record.
func (s *Store) CreateRoom(ctx context.Context, room *storage.Room) error {
	if room == nil {
		return errors.New("nil room")
	}
	model := roomModel{
		ID:         room.ID,
		Name:       room.Name,
		Admin:      room.Admin,
		SecretHash: room.SecretHash,
		Default:    room.Default,
		CreatedAt:  room.CreatedAt,
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

// DeleteRoom removes a room and cascades to its messages.
func (s *Store) DeleteRoom(ctx context.Context, roomID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ?", roomID).Delete(&messageModel{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", roomID).Delete(&roomModel{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return storage.ErrNotFound
		}
		return nil
	})
}

// ListRooms returns every room ordered by creation time.
func (s *Store) ListRooms(ctx context.Context) ([]storage.Room, error) {
	var models []roomModel
	if err := s.db.WithContext(ctx).Order("created_at, name").Find(&models).Error; err != nil {
		return nil, err
	}
	rooms := make([]storage.Room, 0, len(models))
	for _, model := range models {
		rooms = append(rooms, storage.Room{
			ID:         model.ID,
			Name:       model.Name,
			Admin:      model.Admin,
			SecretHash: model.SecretHash,
			Default:    model.Default,
			CreatedAt:  model.CreatedAt,
		})
	}
	return rooms, nil
}

// AppendMessage stores a new message and backfills its generated ID.
func (s *Store) AppendMessage(ctx context.Context, msg *storage.Message) error {
	if msg == nil {
		return errors.New("nil message")
	}
	model := messageModel{
		RoomID:    msg.RoomID,
		Seq:       msg.Seq,
		Author:    msg.Author,
		AuthorID:  msg.AuthorID,
		Body:      msg.Body,
		CreatedAt: msg.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return err
	}
	msg.ID = model.ID
	return nil
}

// ListMessages returns up to limit of the latest messages for the room in
// chronological order.
func (s *Store) ListMessages(ctx context.Context, roomID string, limit int) ([]storage.Message, error) {
	query := s.db.WithContext(ctx).Where("room_id = ?", roomID).Order("seq desc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var models []messageModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	messages := make([]storage.Message, len(models))
	for i, model := range models {
		messages[len(models)-1-i] = storage.Message{
			ID:        model.ID,
			RoomID:    model.RoomID,
			Seq:       model.Seq,
			Author:    model.Author,
			AuthorID:  model.AuthorID,
			Body:      model.Body,
			CreatedAt: model.CreatedAt,
		}
	}
	return messages, nil
}

// LastSeq returns the highest assigned sequence number for the room, or zero.
func (s *Store) LastSeq(ctx context.Context, roomID string) (uint64, error) {
	var model messageModel
	err := s.db.WithContext(ctx).Where("room_id = ?", roomID).Order("seq desc").First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return model.Seq, nil
}
