package controller

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"wgwarden/internal/bundle"
	"wgwarden/internal/identity"
	"wgwarden/internal/ipam"
	"wgwarden/internal/logs"
	"wgwarden/internal/models"
	"wgwarden/internal/render/wgconf"
	"wgwarden/internal/wgiface"
)

// Registry — то, что диспетчеру нужно от реестра.
type Registry interface {
	Create(ctx context.Context, p *models.Peer) error
	GetByUsername(ctx context.Context, username string) (*models.Peer, error)
	GetByPublicKey(ctx context.Context, publicKey string) (*models.Peer, error)
	List(ctx context.Context) ([]models.Peer, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]models.Peer, error)
	ListEnabled(ctx context.Context) ([]models.Peer, error)
	UsedAddresses(ctx context.Context) ([]string, error)
	SetEnabled(ctx context.Context, username string, enabled bool) error
	Delete(ctx context.Context, username string) error
}

// Applier — сверка живого интерфейса с желаемым множеством.
type Applier interface {
	Apply(ctx context.Context, desired []models.Peer) (*wgiface.Report, error)
	// ResetFailures снимает карантин сбоев с пира, ретраи начинаются заново.
	ResetFailures(publicKey string)
}

// StatsTicker — один проход сверки статистики.
type StatsTicker interface {
	Tick(ctx context.Context) error
}

// Options — зависимости и настройки диспетчера.
type Options struct {
	Registry Registry
	Applier  Applier
	Stats    StatsTicker // nil — фоновая сверка статистики выключена
	Pool     *ipam.Pool
	Server   wgconf.ServerParams
	Policy   *Policy

	// Тело класса разрешённых символов имени, например "a-zA-Z0-9_".
	UsernamePattern string
	// Путь серверного файла пир-блоков; пусто — файл не ведём.
	ConfigFile string

	ApplyInterval time.Duration
	StatsInterval time.Duration
	QueueSize     int
}

// Dispatcher принимает намерения операторов и исполняет их в нужном
// порядке. Все мутации (create/import/enable/disable/delete) проходят
// через одну очередь и применяются строго по одной от начала до конца:
// транзакция реестра + сверка интерфейса + запись серверного файла.
// Чтения идут мимо очереди. Фоновые тики той же очередью сериализуются
// с командами операторов.
type Dispatcher struct {
	reg     Registry
	applier Applier
	stats   StatsTicker
	pool    *ipam.Pool
	server  wgconf.ServerParams
	policy  *Policy

	nameRe     *regexp.Regexp
	cfgFile    string
	applyEvery time.Duration
	statsEvery time.Duration

	jobs chan job
}

type job struct {
	name string
	fn   func(ctx context.Context) (any, error)
	done chan jobResult
}

type jobResult struct {
	v   any
	err error
}

func New(opts Options) (*Dispatcher, error) {
	pattern := opts.UsernamePattern
	if pattern == "" {
		pattern = "a-zA-Z0-9_"
	}
	re, err := regexp.Compile("^[" + pattern + "]+$")
	if err != nil {
		return nil, fmt.Errorf("controller: bad username pattern: %w", err)
	}
	if opts.Registry == nil || opts.Applier == nil || opts.Pool == nil || opts.Policy == nil {
		return nil, errors.New("controller: registry, applier, pool and policy are required")
	}
	qs := opts.QueueSize
	if qs <= 0 {
		qs = 32
	}
	return &Dispatcher{
		reg:        opts.Registry,
		applier:    opts.Applier,
		stats:      opts.Stats,
		pool:       opts.Pool,
		server:     opts.Server,
		policy:     opts.Policy,
		nameRe:     re,
		cfgFile:    opts.ConfigFile,
		applyEvery: opts.ApplyInterval,
		statsEvery: opts.StatsInterval,
		jobs:       make(chan job, qs),
	}, nil
}

// Run крутит воркер очереди мутаций и фоновые таймеры. Блокируется до
// отмены контекста.
func (d *Dispatcher) Run(ctx context.Context) {
	applyEvery := d.applyEvery
	if applyEvery <= 0 {
		applyEvery = time.Minute
	}
	applyT := time.NewTicker(applyEvery)
	defer applyT.Stop()

	statsEvery := d.statsEvery
	if statsEvery <= 0 {
		statsEvery = 5 * time.Minute
	}
	statsT := time.NewTicker(statsEvery)
	defer statsT.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case j := <-d.jobs:
			v, err := j.fn(ctx)
			j.done <- jobResult{v: v, err: err}
		case <-applyT.C:
			if _, err := d.reconcile(ctx); err != nil {
				logs.Logger.Errorf("background reconcile: %v", err)
			}
		case <-statsT.C:
			if d.stats == nil {
				continue
			}
			if err := d.stats.Tick(ctx); err != nil {
				// проход пропускаем, следующий тик попробует снова
				logs.Logger.Errorf("stats pass skipped: %v", err)
			}
		}
	}
}

// submit ставит мутацию в очередь и ждёт результат. Уже начатая
// мутация исполняется на контексте воркера: уход запросившего её не
// отменяет — реестр и интерфейс нельзя оставить разъехавшимися.
func (d *Dispatcher) submit(ctx context.Context, name string, fn func(ctx context.Context) (any, error)) (any, error) {
	j := job{name: name, fn: fn, done: make(chan jobResult, 1)}
	select {
	case d.jobs <- j:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-j.done:
		return res.v, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CreateResult — артефакты выдачи пира.
type CreateResult struct {
	Peer         models.Peer
	ClientConfig []byte // пусто для импортированного пира
	QRPNG        []byte
	Bundle       []byte
	BundleSHA    string
	Apply        *wgiface.Report
}

// CreatePeer выпускает нового пира: имя → адрес → ключи → запись →
// сверка. ownerID=0 — владельцем становится сам запросивший.
func (d *Dispatcher) CreatePeer(ctx context.Context, requestor int64, username string, ownerID int64) (*CreateResult, error) {
	if !d.policy.IsAdmin(requestor) {
		return nil, models.ErrUnauthorized
	}
	if err := d.validateUsername(username); err != nil {
		return nil, err
	}
	if ownerID == 0 {
		ownerID = requestor
	}
	v, err := d.submit(ctx, "create "+username, func(ctx context.Context) (any, error) {
		return d.createLocked(ctx, username, ownerID, "", "")
	})
	if err != nil {
		return nil, err
	}
	return v.(*CreateResult), nil
}

// ImportPeer регистрирует пира с принесённым извне публичным ключом.
// Приватный ключ остаётся у оператора, клиентский конфиг не рендерится.
func (d *Dispatcher) ImportPeer(ctx context.Context, requestor int64, username, publicKey, presharedKey string, ownerID int64) (*CreateResult, error) {
	if !d.policy.IsAdmin(requestor) {
		return nil, models.ErrUnauthorized
	}
	if err := d.validateUsername(username); err != nil {
		return nil, err
	}
	pub, err := identity.ValidateKey(publicKey)
	if err != nil {
		return nil, err
	}
	psk := ""
	if presharedKey != "" {
		if psk, err = identity.ValidateKey(presharedKey); err != nil {
			return nil, err
		}
	}
	if ownerID == 0 {
		ownerID = requestor
	}
	v, err := d.submit(ctx, "import "+username, func(ctx context.Context) (any, error) {
		return d.createLocked(ctx, username, ownerID, pub, psk)
	})
	if err != nil {
		return nil, err
	}
	return v.(*CreateResult), nil
}

// createLocked исполняется воркером очереди; параллельных с ним
// мутаций нет. importedPub=="" означает генерацию свежей личности.
func (d *Dispatcher) createLocked(ctx context.Context, username string, ownerID int64, importedPub, importedPSK string) (*CreateResult, error) {
	if _, err := d.reg.GetByUsername(ctx, username); err == nil {
		return nil, models.ErrDuplicateUsername
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	used, err := d.reg.UsedAddresses(ctx)
	if err != nil {
		return nil, err
	}
	addr, err := d.pool.Next(used)
	if err != nil {
		return nil, err
	}

	p := models.Peer{
		Username: username,
		Address:  addr,
		OwnerID:  ownerID,
		Enabled:  true,
	}
	if importedPub != "" {
		p.PublicKey = importedPub
		p.PresharedKey = importedPSK
	} else {
		id, err := identity.Generate(true)
		if err != nil {
			return nil, err
		}
		// Коллизия свежесгенерированного ключа — сломанный источник
		// случайности, а не повод ретраить.
		if _, err := d.reg.GetByPublicKey(ctx, id.PublicKey); err == nil {
			logs.Logger.Errorf("generated public key already present in registry, refusing to continue")
			return nil, models.ErrKeyCollision
		} else if !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		p.PublicKey = id.PublicKey
		p.PrivateKey = id.PrivateKey
		p.PresharedKey = id.PresharedKey
	}

	if err := d.reg.Create(ctx, &p); err != nil {
		// частичной строки нет, адрес возвращается в пул сам собой —
		// занятость выводится из реестра
		return nil, err
	}

	rep, err := d.reconcile(ctx)
	if err != nil {
		// реестр — источник истины о намерении; живое состояние
		// доедет следующим проходом
		logs.Logger.Warnf("apply after create %s: %v", username, err)
	}

	res := &CreateResult{Peer: p, Apply: rep}
	if !p.Imported() {
		if err := d.renderArtifacts(res); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (d *Dispatcher) renderArtifacts(res *CreateResult) error {
	res.ClientConfig = wgconf.ClientConfig(&res.Peer, d.server)
	png, err := wgconf.ClientQR(res.ClientConfig)
	if err != nil {
		return err
	}
	res.QRPNG = png
	b, sum, err := bundle.Build(res.Peer.Username, res.ClientConfig, png)
	if err != nil {
		return err
	}
	res.Bundle = b
	res.BundleSHA = sum
	return nil
}

// EnablePeer включает пира обратно в живой набор.
func (d *Dispatcher) EnablePeer(ctx context.Context, requestor int64, username string) (*wgiface.Report, error) {
	return d.setEnabled(ctx, requestor, username, true)
}

// DisablePeer убирает пира с интерфейса; запись, адрес и ключи
// сохраняются.
func (d *Dispatcher) DisablePeer(ctx context.Context, requestor int64, username string) (*wgiface.Report, error) {
	return d.setEnabled(ctx, requestor, username, false)
}

func (d *Dispatcher) setEnabled(ctx context.Context, requestor int64, username string, enabled bool) (*wgiface.Report, error) {
	v, err := d.submit(ctx, "toggle "+username, func(ctx context.Context) (any, error) {
		p, err := d.reg.GetByUsername(ctx, username)
		if err != nil {
			return nil, err
		}
		if d.policy.Authorize(requestor, p.OwnerID) == DecisionDenied {
			return nil, models.ErrUnauthorized
		}
		if err := d.reg.SetEnabled(ctx, username, enabled); err != nil {
			return nil, err
		}
		rep, err := d.reconcile(ctx)
		if err != nil {
			logs.Logger.Warnf("apply after toggle %s: %v", username, err)
		}
		return rep, nil
	})
	if err != nil {
		return nil, err
	}
	rep, _ := v.(*wgiface.Report)
	return rep, nil
}

// DeletePeer снимает пира с интерфейса и удаляет запись; адрес сразу
// возвращается в пул.
func (d *Dispatcher) DeletePeer(ctx context.Context, requestor int64, username string) error {
	if !d.policy.IsAdmin(requestor) {
		return models.ErrUnauthorized
	}
	_, err := d.submit(ctx, "delete "+username, func(ctx context.Context) (any, error) {
		if err := d.reg.Delete(ctx, username); err != nil {
			return nil, err
		}
		if _, err := d.reconcile(ctx); err != nil {
			logs.Logger.Warnf("apply after delete %s: %v", username, err)
		}
		return nil, nil
	})
	return err
}

// RetryPeer снимает карантин сбоев с пира после вмешательства
// оператора и сразу пересверяет интерфейс.
func (d *Dispatcher) RetryPeer(ctx context.Context, requestor int64, username string) (*wgiface.Report, error) {
	if !d.policy.IsAdmin(requestor) {
		return nil, models.ErrUnauthorized
	}
	v, err := d.submit(ctx, "retry "+username, func(ctx context.Context) (any, error) {
		p, err := d.reg.GetByUsername(ctx, username)
		if err != nil {
			return nil, err
		}
		d.applier.ResetFailures(p.PublicKey)
		return d.reconcile(ctx)
	})
	if err != nil {
		return nil, err
	}
	rep, _ := v.(*wgiface.Report)
	return rep, nil
}

// ReconcileNow — принудительная сверка по команде оператора.
func (d *Dispatcher) ReconcileNow(ctx context.Context, requestor int64) (*wgiface.Report, error) {
	if !d.policy.IsAdmin(requestor) {
		return nil, models.ErrUnauthorized
	}
	v, err := d.submit(ctx, "reconcile", func(ctx context.Context) (any, error) {
		return d.reconcile(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*wgiface.Report), nil
}

// RefreshStats — внеочередной проход сверки статистики.
func (d *Dispatcher) RefreshStats(ctx context.Context, requestor int64) error {
	if !d.policy.IsAdmin(requestor) {
		return models.ErrUnauthorized
	}
	if d.stats == nil {
		return errors.New("controller: stats source not configured")
	}
	_, err := d.submit(ctx, "stats", func(ctx context.Context) (any, error) {
		return nil, d.stats.Tick(ctx)
	})
	return err
}

// reconcile — ядро сверки: желаемое множество из реестра → интерфейс,
// затем атомарная перезапись серверного файла. Вызывается только из
// воркера очереди.
func (d *Dispatcher) reconcile(ctx context.Context) (*wgiface.Report, error) {
	enabled, err := d.reg.ListEnabled(ctx)
	if err != nil {
		return nil, err
	}
	rep, err := d.applier.Apply(ctx, enabled)
	if err != nil {
		return rep, err
	}
	if d.cfgFile != "" {
		all, err := d.reg.List(ctx)
		if err != nil {
			return rep, err
		}
		if err := wgconf.WriteFile(d.cfgFile, wgconf.ServerConfig(all)); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

// ListPeers: администратор видит всех, остальные — только своих.
func (d *Dispatcher) ListPeers(ctx context.Context, requestor int64) ([]models.Peer, error) {
	if d.policy.IsAdmin(requestor) {
		return d.reg.List(ctx)
	}
	return d.reg.ListByOwner(ctx, requestor)
}

// PeerStats — телеметрия одного пира.
func (d *Dispatcher) PeerStats(ctx context.Context, requestor int64, username string) (*models.Peer, error) {
	p, err := d.reg.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if d.policy.Authorize(requestor, p.OwnerID) == DecisionDenied {
		return nil, models.ErrUnauthorized
	}
	return p, nil
}

// PeerConfig перерендеривает артефакты выдачи существующего пира.
func (d *Dispatcher) PeerConfig(ctx context.Context, requestor int64, username string) (*CreateResult, error) {
	p, err := d.reg.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if d.policy.Authorize(requestor, p.OwnerID) == DecisionDenied {
		return nil, models.ErrUnauthorized
	}
	if p.Imported() {
		return nil, fmt.Errorf("%w: peer was imported, private key is not held here", models.ErrValidation)
	}
	res := &CreateResult{Peer: *p}
	if err := d.renderArtifacts(res); err != nil {
		return nil, err
	}
	return res, nil
}

func (d *Dispatcher) validateUsername(username string) error {
	if username == "" || len(username) > 64 {
		return fmt.Errorf("%w: username must be 1..64 characters", models.ErrValidation)
	}
	if !d.nameRe.MatchString(username) {
		return fmt.Errorf("%w: username contains characters outside the allowed set", models.ErrValidation)
	}
	return nil
}
