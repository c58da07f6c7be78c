package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"

	"github.com/dgraph-io/ristretto"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"docmanager/internal/domain"
	"docmanager/internal/idgen"
	"docmanager/internal/metrics"
)

const maxIdentifierAttempts = 3

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// OwnerRegistry реестр видов владельцев по имени вида
type OwnerRegistry struct {
	kinds map[string]domain.OwnerKind
}

// NewOwnerRegistry проверяет описания видов; имена таблиц и колонок подставляются в SQL,
// поэтому допускаются только простые идентификаторы
func NewOwnerRegistry(kinds ...domain.OwnerKind) (*OwnerRegistry, error) {
	r := &OwnerRegistry{kinds: make(map[string]domain.OwnerKind, len(kinds))}
	for _, k := range kinds {
		if k.Name == "" {
			return nil, fmt.Errorf("owner kind name is required")
		}
		if k.PKColumn == "" {
			k.PKColumn = "id"
		}
		if k.IDColumn == "" {
			k.IDColumn = "document_owner_id"
		}
		for _, ident := range append([]string{k.Table, k.PKColumn, k.KeyColumn, k.IDColumn}, k.Columns...) {
			if !identifierPattern.MatchString(ident) {
				return nil, fmt.Errorf("owner kind %s: invalid SQL identifier %q", k.Name, ident)
			}
		}
		if _, exists := r.kinds[k.Name]; exists {
			return nil, fmt.Errorf("duplicate owner kind: %s", k.Name)
		}
		r.kinds[k.Name] = k
	}
	return r, nil
}

func (r *OwnerRegistry) Get(name string) (domain.OwnerKind, error) {
	k, ok := r.kinds[name]
	if !ok {
		return domain.OwnerKind{}, &domain.Error{
			Kind:    domain.KindOwnerNotFound,
			Message: fmt.Sprintf("unknown owner kind: %s", name),
		}
	}
	return k, nil
}

func (r *OwnerRegistry) Names() []string {
	names := make([]string, 0, len(r.kinds))
	for name := range r.kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OwnerService разрешает владельцев и назначает им идентификаторы
type OwnerService struct {
	store   OwnerStore
	kinds   *OwnerRegistry
	ids     idgen.Source
	cache   *ristretto.Cache
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewOwnerService(
	store OwnerStore,
	kinds *OwnerRegistry,
	ids idgen.Source,
	logger *zap.Logger,
	m *metrics.Metrics,
) (*OwnerService, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10000,
		MaxCost:     1000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create owner cache: %w", err)
	}

	return &OwnerService{
		store:   store,
		kinds:   kinds,
		ids:     ids,
		cache:   cache,
		logger:  logger.With(zap.String("service", "owner_service")),
		metrics: m,
	}, nil
}

func (s *OwnerService) Kinds() []string {
	return s.kinds.Names()
}

func cacheKey(kind string, id uuid.UUID) string {
	return kind + "|" + id.String()
}

// Resolve находит владельца по виду и идентификатору
func (s *OwnerService) Resolve(ctx context.Context, kindName string, ownerID uuid.UUID) (*domain.Owner, error) {
	kind, err := s.kinds.Get(kindName)
	if err != nil {
		return nil, err
	}
	if ownerID == uuid.Nil {
		return nil, &domain.Error{Kind: domain.KindOwnerNotFound, Message: "owner identifier is empty"}
	}

	// Ключ кэша - идентификатор, который после записи не меняется, а промахи не кэшируются,
	// поэтому запись идентификатора не требует инвалидации. BulkUpdate очищает кэш целиком.
	key := cacheKey(kind.Name, ownerID)
	if cached, ok := s.cache.Get(key); ok {
		owner := cached.(domain.Owner)
		return &owner, nil
	}

	owner, err := s.store.FindByOwnerID(ctx, kind, ownerID)
	if err != nil {
		return nil, err
	}
	owner.Kind = kind.Name
	s.cache.Set(key, *owner, 1)
	return owner, nil
}

// ResolveRef проверяет существование владельца по ссылке
func (s *OwnerService) ResolveRef(ctx context.Context, ref domain.OwnerRef) (*domain.Owner, error) {
	return s.Resolve(ctx, ref.Kind, ref.ID)
}

// EnsureIdentifier возвращает идентификатор владельца, назначая его при первом обращении.
// Запись выполняется условным обновлением "только если пусто"; проигравший гонку
// перечитывает значение победителя.
func (s *OwnerService) EnsureIdentifier(ctx context.Context, owner *domain.Owner) (uuid.UUID, error) {
	if owner.OwnerID != nil && *owner.OwnerID != uuid.Nil {
		return *owner.OwnerID, nil
	}

	kind, err := s.kinds.Get(owner.Kind)
	if err != nil {
		return uuid.Nil, err
	}

	for attempt := 0; attempt < maxIdentifierAttempts; attempt++ {
		id, err := s.ids.New()
		if err != nil {
			return uuid.Nil, err
		}

		written, err := s.store.AssignIdentifier(ctx, kind, owner.PK, id)
		if errors.Is(err, domain.ErrIdentifierCollision) {
			s.logger.Warn("owner identifier collision, regenerating",
				zap.String("kind", kind.Name), zap.Int64("pk", owner.PK))
			continue
		}
		if err != nil {
			return uuid.Nil, err
		}

		if written {
			s.metrics.IncIdentifierAssigned(kind.Name)
			s.logger.Info("owner identifier assigned",
				zap.String("kind", kind.Name), zap.Int64("pk", owner.PK), zap.String("owner_id", id.String()))
			owner.OwnerID = &id
			return id, nil
		}

		// Другой вызывающий уже записал идентификатор
		current, err := s.store.FindByPK(ctx, kind, owner.PK)
		if err != nil {
			return uuid.Nil, err
		}
		if current.OwnerID == nil {
			return uuid.Nil, &domain.Error{
				Kind:    domain.KindConcurrencyViolation,
				Message: "owner identifier was not written and is still empty",
			}
		}
		owner.OwnerID = current.OwnerID
		return *current.OwnerID, nil
	}

	return uuid.Nil, &domain.Error{
		Kind:    domain.KindConcurrencyViolation,
		Message: "failed to assign a unique owner identifier",
		Err:     domain.ErrIdentifierCollision,
	}
}

// EnsureIdentifierByPK загружает строку владельца и назначает ей идентификатор
func (s *OwnerService) EnsureIdentifierByPK(ctx context.Context, kindName string, pk int64) (*domain.Owner, error) {
	kind, err := s.kinds.Get(kindName)
	if err != nil {
		return nil, err
	}
	owner, err := s.store.FindByPK(ctx, kind, pk)
	if err != nil {
		return nil, err
	}
	owner.Kind = kind.Name

	if _, err := s.EnsureIdentifier(ctx, owner); err != nil {
		return nil, err
	}
	return owner, nil
}

// ResolveOrCreate находит владельца по ключу или создает его сразу с идентификатором
func (s *OwnerService) ResolveOrCreate(ctx context.Context, kindName, key string) (*domain.Owner, bool, error) {
	kind, err := s.kinds.Get(kindName)
	if err != nil {
		return nil, false, err
	}
	if key == "" {
		return nil, false, domain.NewValidationError(domain.CodeInvalidOwnerField, "owner key is required")
	}

	existing, err := s.store.FindByKey(ctx, kind, key)
	if err == nil {
		existing.Kind = kind.Name
		if _, err := s.EnsureIdentifier(ctx, existing); err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrOwnerNotFound) {
		return nil, false, err
	}

	for attempt := 0; attempt < maxIdentifierAttempts; attempt++ {
		id, err := s.ids.New()
		if err != nil {
			return nil, false, err
		}

		owner, created, err := s.store.InsertWithIdentifier(ctx, kind, key, id)
		if errors.Is(err, domain.ErrIdentifierCollision) {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		owner.Kind = kind.Name

		if created {
			s.metrics.IncIdentifierAssigned(kind.Name)
			s.logger.Info("owner created",
				zap.String("kind", kind.Name), zap.String("key", key), zap.String("owner_id", id.String()))
			return owner, true, nil
		}

		// Параллельная вставка с тем же ключом выиграла
		if _, err := s.EnsureIdentifier(ctx, owner); err != nil {
			return nil, false, err
		}
		return owner, false, nil
	}

	return nil, false, &domain.Error{
		Kind:    domain.KindConcurrencyViolation,
		Message: "failed to create owner with a unique identifier",
		Err:     domain.ErrIdentifierCollision,
	}
}

// BulkCreate создает владельцев пачкой; идентификаторы генерируются до вставки
func (s *OwnerService) BulkCreate(ctx context.Context, kindName string, keys []string) ([]domain.Owner, error) {
	kind, err := s.kinds.Get(kindName)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}

	for attempt := 0; attempt < maxIdentifierAttempts; attempt++ {
		ids := make([]uuid.UUID, len(keys))
		for i := range keys {
			if keys[i] == "" {
				return nil, domain.NewValidationError(domain.CodeInvalidOwnerField, "owner key is required")
			}
			if ids[i], err = s.ids.New(); err != nil {
				return nil, err
			}
		}

		owners, err := s.store.BulkInsert(ctx, kind, keys, ids)
		if errors.Is(err, domain.ErrIdentifierCollision) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for i := range owners {
			owners[i].Kind = kind.Name
			s.metrics.IncIdentifierAssigned(kind.Name)
		}
		return owners, nil
	}

	return nil, &domain.Error{
		Kind:    domain.KindConcurrencyViolation,
		Message: "failed to bulk create owners with unique identifiers",
		Err:     domain.ErrIdentifierCollision,
	}
}

// BulkUpdate обновляет поля владельцев. Изменение идентификатора владельца
// отбрасывается с предупреждением: идентификатор записывается один раз.
func (s *OwnerService) BulkUpdate(ctx context.Context, kindName string, updates []domain.OwnerUpdate) error {
	kind, err := s.kinds.Get(kindName)
	if err != nil {
		return err
	}

	allowed := make(map[string]struct{}, len(kind.Columns)+1)
	allowed[kind.KeyColumn] = struct{}{}
	for _, c := range kind.Columns {
		allowed[c] = struct{}{}
	}

	for _, u := range updates {
		fields := make(map[string]interface{}, len(u.Fields))
		for column, value := range u.Fields {
			if column == kind.IDColumn {
				s.metrics.IncIdentifierStripped(kind.Name)
				s.logger.Warn("owner identifier is write-once, dropping update",
					zap.String("kind", kind.Name), zap.Int64("pk", u.PK))
				continue
			}
			if _, ok := allowed[column]; !ok {
				return domain.NewValidationError(domain.CodeInvalidOwnerField,
					fmt.Sprintf("column %q is not updatable for owner kind %s", column, kind.Name))
			}
			fields[column] = value
		}
		if len(fields) == 0 {
			continue
		}
		if err := s.store.UpdateFields(ctx, kind, u.PK, fields); err != nil {
			return err
		}
	}

	s.cache.Clear()
	return nil
}

// PopulateResult итог заполнения пустых идентификаторов
type PopulateResult struct {
	Kind      string
	Missing   int
	Updated   int
	Failed    int
	Remaining int
}

// PopulateMissing назначает идентификаторы существующим строкам без них, пачками по batchSize
func (s *OwnerService) PopulateMissing(ctx context.Context, kindName string, batchSize int, dryRun bool) (*PopulateResult, error) {
	kind, err := s.kinds.Get(kindName)
	if err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	missing, err := s.store.CountMissingIdentifiers(ctx, kind)
	if err != nil {
		return nil, err
	}
	result := &PopulateResult{Kind: kind.Name, Missing: missing, Remaining: missing}
	if missing == 0 || dryRun {
		return result, nil
	}

	// Строки, которые не удалось обновить, повторно попадают в выборку; ограничиваем число проходов
	for passes := 0; passes <= missing/batchSize+1; passes++ {
		batch, err := s.store.ListMissingIdentifiers(ctx, kind, batchSize)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}

		for i := range batch {
			owner := batch[i]
			owner.Kind = kind.Name
			if _, err := s.EnsureIdentifier(ctx, &owner); err != nil {
				result.Failed++
				s.logger.Error("failed to assign owner identifier",
					zap.String("kind", kind.Name), zap.Int64("pk", owner.PK), zap.Error(err))
				continue
			}
			result.Updated++
		}
	}

	result.Remaining, err = s.store.CountMissingIdentifiers(ctx, kind)
	if err != nil {
		return nil, err
	}
	return result, nil
}
