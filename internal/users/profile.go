package users

import (
	"errors"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"
)

// User is the locally cached profile of a backend user. Profiles are
// refreshed opportunistically from API payloads as they pass through the
// domain services; the backend remains the source of truth.
type User struct {
	ID          string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	Email       string    `gorm:"column:email;size:320"`
	DisplayName string    `gorm:"column:display_name;size:320"`
	AvatarURL   string    `gorm:"column:avatar_url;size:512"`
	LastSeenAt  time.Time `gorm:"column:last_seen_at;autoUpdateTime"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName exposes the table backing cached user profiles.
func (User) TableName() string {
	return "user_profiles"
}

// CacheConfig describes the dependencies of the profile cache.
type CacheConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Cache memoizes user profiles in memory with a durable SQLite copy so
// mention ids can be rendered as display names across restarts.
type Cache struct {
	db     *gorm.DB
	now    func() time.Time
	memory sync.Map
}

// NewCache constructs the profile cache.
func NewCache(cfg CacheConfig) (*Cache, error) {
	if cfg.Database == nil {
		return nil, errors.New("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Cache{db: cfg.Database, now: clock}, nil
}

// Remember upserts a profile observed in an API payload. Blank fields never
// overwrite previously cached values.
func (c *Cache) Remember(user User) error {
	userID := strings.TrimSpace(user.ID)
	if userID == "" {
		return nil
	}

	var existing User
	err := c.db.Where("user_id = ?", userID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user.ID = userID
		user.LastSeenAt = c.now()
		if err := c.db.Create(&user).Error; err != nil {
			return err
		}
		c.memory.Store(userID, user)
		return nil
	}
	if err != nil {
		return err
	}

	updates := map[string]interface{}{"last_seen_at": c.now()}
	if email := strings.TrimSpace(user.Email); email != "" && email != existing.Email {
		updates["email"] = email
		existing.Email = email
	}
	if display := strings.TrimSpace(user.DisplayName); display != "" && display != existing.DisplayName {
		updates["display_name"] = display
		existing.DisplayName = display
	}
	if avatar := strings.TrimSpace(user.AvatarURL); avatar != "" && avatar != existing.AvatarURL {
		updates["avatar_url"] = avatar
		existing.AvatarURL = avatar
	}
	if err := c.db.Model(&User{}).Where("user_id = ?", userID).Updates(updates).Error; err != nil {
		return err
	}
	c.memory.Store(userID, existing)
	return nil
}

// DisplayName resolves a user id to its cached display name, falling back
// to the raw id when the profile has never been seen.
func (c *Cache) DisplayName(userID string) string {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ""
	}
	if cached, ok := c.memory.Load(userID); ok {
		if user, ok := cached.(User); ok && user.DisplayName != "" {
			return user.DisplayName
		}
	}
	var user User
	if err := c.db.Where("user_id = ?", userID).First(&user).Error; err != nil {
		return userID
	}
	c.memory.Store(userID, user)
	if user.DisplayName == "" {
		return userID
	}
	return user.DisplayName
}
