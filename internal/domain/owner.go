package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// OwnerRef ссылка на владельца: вид сущности и ее идентификатор
type OwnerRef struct {
	Kind string    `json:"owner_kind"`
	ID   uuid.UUID `json:"owner_id"`
}

func (r OwnerRef) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.ID)
}

// Ownable реализуется сущностями приложения, которые могут владеть документами
type Ownable interface {
	OwnerKind() string
	OwnerIdentifier() uuid.UUID
}

// Owner строка таблицы владельца
type Owner struct {
	Kind    string     `json:"kind" db:"-"`
	PK      int64      `json:"pk" db:"pk"`
	Key     string     `json:"key" db:"key"`
	OwnerID *uuid.UUID `json:"owner_id,omitempty" db:"owner_id"`
}

func (o *Owner) OwnerKind() string {
	return o.Kind
}

// OwnerIdentifier возвращает идентификатор владельца или uuid.Nil, если он еще не назначен
func (o *Owner) OwnerIdentifier() uuid.UUID {
	if o.OwnerID == nil {
		return uuid.Nil
	}
	return *o.OwnerID
}

func (o *Owner) Ref() OwnerRef {
	return OwnerRef{Kind: o.Kind, ID: o.OwnerIdentifier()}
}

// OwnerUpdate массовое изменение полей строки владельца
type OwnerUpdate struct {
	PK     int64
	Fields map[string]interface{}
}

// OwnerKind описывает таблицу, строки которой могут владеть документами
type OwnerKind struct {
	Name      string   `mapstructure:"Kind"`
	Table     string   `mapstructure:"Table"`
	PKColumn  string   `mapstructure:"PKColumn"`
	KeyColumn string   `mapstructure:"KeyColumn"`
	IDColumn  string   `mapstructure:"IDColumn"`
	Columns   []string `mapstructure:"Columns"`
}
