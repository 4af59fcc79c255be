package device

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/oxyio/netmon/internal/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TableName places devices in the "devices" table.
func (Device) TableName() string {
	return "devices"
}

// SQLStore keeps devices in a gorm database.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore migrates the devices table and returns the store.
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(&Device{}); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrStore,
			"Couldn't migrate the devices table",
			"The database may belong to another version of netmon.")
	}
	return &SQLStore{db: db}, nil
}

// Load returns the device with the given id.
func (s *SQLStore) Load(ctx context.Context, id string) (*Device, error) {
	var d Device
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&d).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrStore,
			fmt.Sprintf("Couldn't load device '%s'", id), "")
	}
	return &d, nil
}

// Save validates the device and upserts it.
func (s *SQLStore) Save(ctx context.Context, d *Device) error {
	if err := d.Validate(); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(d.Clone()).Error
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrStore,
			fmt.Sprintf("Couldn't save device '%s'", d.ID), "")
	}
	return nil
}

// List returns all devices sorted by id.
func (s *SQLStore) List(ctx context.Context) ([]*Device, error) {
	var devices []*Device
	if err := s.db.WithContext(ctx).Order("id").Find(&devices).Error; err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrStore, "Couldn't list devices", "")
	}
	return devices, nil
}
