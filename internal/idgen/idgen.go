// Package idgen генерирует упорядоченные по времени идентификаторы.
//
// Старшие 48 бит - время в миллисекундах Unix, остальные биты случайные
// (с битами версии 7 и варианта RFC 4122, как в UUIDv7). Идентификаторы,
// созданные в разные миллисекунды, сортируются по времени создания; внутри
// одной миллисекунды порядок определяется случайным хвостом.
package idgen

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"time"

	"github.com/google/uuid"

	"docmanager/internal/domain"
)

// Source выдает новые идентификаторы
type Source interface {
	New() (uuid.UUID, error)
}

// Generator генератор идентификаторов на основе часов и источника случайности
type Generator struct {
	now  func() time.Time
	rand io.Reader
}

// Option настраивает генератор
type Option func(*Generator)

func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

func WithRandom(r io.Reader) Option {
	return func(g *Generator) { g.rand = r }
}

func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		now:  time.Now,
		rand: rand.Reader,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// New создает идентификатор для текущего момента
func (g *Generator) New() (uuid.UUID, error) {
	var id uuid.UUID
	putMillis(&id, g.now())

	if _, err := io.ReadFull(g.rand, id[6:]); err != nil {
		return uuid.Nil, domain.NewError(domain.KindEntropyUnavailable, "random source exhausted", err)
	}
	setVersionBits(&id)
	return id, nil
}

// Floor возвращает наименьший идентификатор, который мог быть создан в момент t.
// Используется как нижняя граница в запросах по диапазону идентификаторов.
func Floor(t time.Time) uuid.UUID {
	var id uuid.UUID
	putMillis(&id, t)
	setVersionBits(&id)
	return id
}

// Time извлекает время создания из идентификатора
func Time(id uuid.UUID) time.Time {
	var buf [8]byte
	copy(buf[2:], id[:6])
	ms := int64(binary.BigEndian.Uint64(buf[:]))
	return time.UnixMilli(ms)
}

var defaultGenerator = NewGenerator()

// New создает идентификатор генератором по умолчанию
func New() (uuid.UUID, error) {
	return defaultGenerator.New()
}

func putMillis(id *uuid.UUID, t time.Time) {
	ms := uint64(t.UnixMilli())
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], ms)
	copy(id[:6], buf[2:])
}

func setVersionBits(id *uuid.UUID) {
	id[6] = (id[6] & 0x0f) | 0x70
	id[8] = (id[8] & 0x3f) | 0x80
}
