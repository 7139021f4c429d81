package license

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Record is an issued license. Only LicenseKey is authenticated; every other
// field is informational and may be edited without affecting verification.
type Record struct {
	FactoryID           string     `json:"factoryId"`
	FactoryName         string     `json:"factoryName"`
	PurchasedStandards  []string   `json:"purchasedStandards"`
	StandardsShortCodes []string   `json:"standardsShortCodes"`
	ExpiryDate          *time.Time `json:"expiryDate"`
	IsLifetime          bool       `json:"isLifetime"`
	// MaxUsers is not bound into the signed key. Binding it would break every
	// previously issued key.
	MaxUsers    *int      `json:"maxUsers"`
	GeneratedAt time.Time `json:"generatedAt"`
	TotalPrice  float64   `json:"totalPrice"`
	LicenseKey  string    `json:"licenseKey"`
}

// Marshal returns the indented JSON form of the record.
func (r *Record) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal license record: %w", err)
	}
	return data, nil
}

// Save writes the record as JSON, creating parent directories as needed.
func (r *Record) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create license directory: %w", err)
	}

	data, err := r.Marshal()
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write license file: %w", err)
	}
	return nil
}

// FileStore writes every issued record to Path. When Next is set it runs
// after the file is written, and the file is removed again if Next fails.
type FileStore struct {
	Path string
	Next Store
}

// SaveRecord implements Store.
func (s *FileStore) SaveRecord(ctx context.Context, rec *Record) error {
	if err := rec.Save(s.Path); err != nil {
		return err
	}
	if s.Next == nil {
		return nil
	}
	if err := s.Next.SaveRecord(ctx, rec); err != nil {
		if rmErr := os.Remove(s.Path); rmErr != nil {
			return fmt.Errorf("%w (remove %s: %v)", err, s.Path, rmErr)
		}
		return err
	}
	return nil
}

// LoadRecord reads a record previously written by Save.
func LoadRecord(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read license file: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse license file: %w", err)
	}
	return &rec, nil
}
