package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/freeholdgames/stellar-dominion/internal/model"
	"github.com/freeholdgames/stellar-dominion/internal/repository"
	"github.com/freeholdgames/stellar-dominion/pkg/combat"
	"github.com/freeholdgames/stellar-dominion/pkg/diplomacy"
	"github.com/freeholdgames/stellar-dominion/pkg/economy"
)

// mockPlayerRepo implements repository.PlayerRepository for testing.
type mockPlayerRepo struct {
	players map[string]*model.Player
	seq     int
}

func newMockPlayerRepo() *mockPlayerRepo {
	return &mockPlayerRepo{players: make(map[string]*model.Player)}
}

func (m *mockPlayerRepo) Create(_ context.Context, username, passwordHash, displayName string) (*model.Player, error) {
	for _, p := range m.players {
		if p.Username == username {
			return nil, fmt.Errorf("username %q taken: %w", username, repository.ErrStateConflict)
		}
	}
	m.seq++
	p := &model.Player{
		ID:           fmt.Sprintf("player-%d", m.seq),
		Username:     username,
		PasswordHash: passwordHash,
		DisplayName:  displayName,
		IsActive:     true,
		CreatedAt:    time.Now(),
	}
	m.players[p.ID] = p
	cp := *p
	return &cp, nil
}

func (m *mockPlayerRepo) FindByID(_ context.Context, id string) (*model.Player, error) {
	p, ok := m.players[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *mockPlayerRepo) FindByUsername(_ context.Context, username string) (*model.Player, error) {
	for _, p := range m.players {
		if p.Username == username {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockPlayerRepo) UpdatePassword(_ context.Context, id, passwordHash string) error {
	if p, ok := m.players[id]; ok {
		p.PasswordHash = passwordHash
	}
	return nil
}

func (m *mockPlayerRepo) Count(_ context.Context) (int, error) {
	return len(m.players), nil
}

// mockEmpireRepo implements repository.EmpireRepository and holds the
// resource balances the other mocks charge against.
type mockEmpireRepo struct {
	empires  map[string]*model.Empire
	byPlayer map[string]string
	order    []string
	seq      int
}

func newMockEmpireRepo() *mockEmpireRepo {
	return &mockEmpireRepo{
		empires:  make(map[string]*model.Empire),
		byPlayer: make(map[string]string),
	}
}

// spend mirrors the guarded SQL decrement: every component balance must
// cover its cost or nothing changes. Negative components credit.
func (m *mockEmpireRepo) spend(id string, cost economy.Resources) error {
	e, ok := m.empires[id]
	if !ok {
		return fmt.Errorf("empire %s not found", id)
	}
	r := e.Resources
	if r.Metal < cost.Metal || r.Energy < cost.Energy || r.Food < cost.Food || r.Research < cost.Research {
		return repository.ErrInsufficientResources
	}
	e.Resources = r.Sub(cost)
	return nil
}

func (m *mockEmpireRepo) credit(id string, delta economy.Resources) {
	if e, ok := m.empires[id]; ok {
		e.Resources = e.Resources.Add(delta)
	}
}

func (m *mockEmpireRepo) Create(_ context.Context, playerID, name string, starting economy.Resources) (*model.Empire, error) {
	if _, exists := m.byPlayer[playerID]; exists {
		return nil, fmt.Errorf("player %s already rules an empire: %w", playerID, repository.ErrStateConflict)
	}
	m.seq++
	e := &model.Empire{
		ID:         fmt.Sprintf("empire-%d", m.seq),
		PlayerID:   playerID,
		Name:       name,
		Resources:  starting,
		TechLevels: map[string]int{},
		CreatedAt:  time.Now(),
	}
	m.empires[e.ID] = e
	m.byPlayer[playerID] = e.ID
	m.order = append(m.order, e.ID)
	cp := *e
	return &cp, nil
}

func (m *mockEmpireRepo) FindByID(_ context.Context, id string) (*model.Empire, error) {
	e, ok := m.empires[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (m *mockEmpireRepo) FindByPlayerID(_ context.Context, playerID string) (*model.Empire, error) {
	id, ok := m.byPlayer[playerID]
	if !ok {
		return nil, nil
	}
	cp := *m.empires[id]
	return &cp, nil
}

func (m *mockEmpireRepo) List(_ context.Context) ([]model.Empire, error) {
	var result []model.Empire
	for _, id := range m.order {
		result = append(result, *m.empires[id])
	}
	return result, nil
}

func (m *mockEmpireRepo) Rename(_ context.Context, id, name string) error {
	if e, ok := m.empires[id]; ok {
		e.Name = name
	}
	return nil
}

func (m *mockEmpireRepo) SpendResources(_ context.Context, id string, cost economy.Resources) error {
	return m.spend(id, cost)
}

func (m *mockEmpireRepo) CreditResources(_ context.Context, id string, delta economy.Resources) error {
	m.credit(id, delta)
	return nil
}

func (m *mockEmpireRepo) ApplyTurnResources(_ context.Context, id string, turn int, apply func(model.Empire) economy.Resources) (bool, error) {
	e, ok := m.empires[id]
	if !ok {
		return false, fmt.Errorf("empire %s not found", id)
	}
	if e.LastResourceUpdate >= turn {
		return false, nil
	}
	e.Resources = apply(*e)
	e.LastResourceUpdate = turn
	return true, nil
}

// mockPlanetRepo implements repository.PlanetRepository. Charges run through
// the shared empire mock; colonization flips fleet state through the fleet
// mock, mirroring the transactional repos.
type mockPlanetRepo struct {
	planets map[string]*model.Planet
	order   []string
	seq     int
	empires *mockEmpireRepo
	fleets  *mockFleetRepo
}

func newMockPlanetRepo(empires *mockEmpireRepo, fleets *mockFleetRepo) *mockPlanetRepo {
	return &mockPlanetRepo{
		planets: make(map[string]*model.Planet),
		empires: empires,
		fleets:  fleets,
	}
}

// add seeds a planet, assigning an id and default status when absent.
func (m *mockPlanetRepo) add(p model.Planet) *model.Planet {
	if p.ID == "" {
		m.seq++
		p.ID = fmt.Sprintf("planet-%d", m.seq)
	}
	if p.Status == "" {
		p.Status = "available"
	}
	if p.Buildings == nil {
		p.Buildings = map[economy.BuildingType]int{}
	}
	cp := p
	m.planets[cp.ID] = &cp
	m.order = append(m.order, cp.ID)
	return &cp
}

func copyPlanet(p *model.Planet) *model.Planet {
	cp := *p
	cp.Buildings = make(map[economy.BuildingType]int, len(p.Buildings))
	for k, v := range p.Buildings {
		cp.Buildings[k] = v
	}
	return &cp
}

func (m *mockPlanetRepo) FindByID(_ context.Context, id string) (*model.Planet, error) {
	p, ok := m.planets[id]
	if !ok {
		return nil, nil
	}
	return copyPlanet(p), nil
}

func (m *mockPlanetRepo) ListByEmpire(_ context.Context, empireID string) ([]model.Planet, error) {
	var result []model.Planet
	for _, id := range m.order {
		if p := m.planets[id]; p.EmpireID == empireID {
			result = append(result, *copyPlanet(p))
		}
	}
	return result, nil
}

func (m *mockPlanetRepo) ListBySector(_ context.Context, sector string) ([]model.Planet, error) {
	var result []model.Planet
	for _, id := range m.order {
		if p := m.planets[id]; p.Sector == sector {
			result = append(result, *copyPlanet(p))
		}
	}
	return result, nil
}

func (m *mockPlanetRepo) CountByEmpire(_ context.Context, empireID string) (int, error) {
	count := 0
	for _, p := range m.planets {
		if p.EmpireID == empireID {
			count++
		}
	}
	return count, nil
}

func (m *mockPlanetRepo) ClaimStartingPlanet(_ context.Context, empireID string, sectors []string) (*model.Planet, error) {
	for _, sector := range sectors {
		for _, id := range m.order {
			p := m.planets[id]
			if p.Sector == sector && p.Status == "available" {
				p.EmpireID = empireID
				p.Status = "active"
				p.Population = 2000
				return copyPlanet(p), nil
			}
		}
	}
	return nil, nil
}

func (m *mockPlanetRepo) CreateSectorPlanets(_ context.Context, empireID, sector string, cost economy.Resources, planets []model.Planet) ([]model.Planet, bool, error) {
	var existing []model.Planet
	for _, id := range m.order {
		if p := m.planets[id]; p.Sector == sector {
			existing = append(existing, *copyPlanet(p))
		}
	}
	if len(existing) > 0 {
		return existing, false, nil
	}
	if err := m.empires.spend(empireID, cost); err != nil {
		return nil, false, err
	}
	var created []model.Planet
	for _, p := range planets {
		p.Sector = sector
		p.Status = "available"
		p.EmpireID = ""
		created = append(created, *m.add(p))
	}
	return created, true, nil
}

func (m *mockPlanetRepo) StartColonization(_ context.Context, planetID, empireID, fleetID string, cost economy.Resources, completion time.Time) error {
	p, ok := m.planets[planetID]
	if !ok || p.Status != "available" {
		return fmt.Errorf("planet not available: %w", repository.ErrStateConflict)
	}
	f, ok := m.fleets.fleets[fleetID]
	if !ok || f.EmpireID != empireID || f.Status != "active" {
		return fmt.Errorf("fleet not active: %w", repository.ErrStateConflict)
	}
	if err := m.empires.spend(empireID, cost); err != nil {
		return err
	}
	now := time.Now()
	p.EmpireID = empireID
	p.Status = "colonizing"
	p.Population = 1000
	p.ColonizingFleetID = fleetID
	p.ColonizationStart = &now
	end := completion
	p.ColonizationEnd = &end
	f.Status = "colonizing"
	return nil
}

func (m *mockPlanetRepo) CompleteDueColonizations(_ context.Context, now time.Time) (int, error) {
	count := 0
	for _, p := range m.planets {
		if p.Status != "colonizing" || p.ColonizationEnd == nil || p.ColonizationEnd.After(now) {
			continue
		}
		p.Status = "active"
		p.Population = 2000
		if f, ok := m.fleets.fleets[p.ColonizingFleetID]; ok && f.Status == "colonizing" {
			f.Status = "active"
		}
		p.ColonizingFleetID = ""
		count++
	}
	return count, nil
}

func (m *mockPlanetRepo) Abandon(_ context.Context, planetID, empireID string, refund economy.Resources) error {
	p, ok := m.planets[planetID]
	if !ok || p.EmpireID != empireID || (p.Status != "active" && p.Status != "colonizing") {
		return fmt.Errorf("planet not an owned colony: %w", repository.ErrStateConflict)
	}
	if f, ok := m.fleets.fleets[p.ColonizingFleetID]; ok && f.Status == "colonizing" {
		f.Status = "active"
	}
	p.EmpireID = ""
	p.Status = "available"
	p.Population = 0
	p.Buildings = map[economy.BuildingType]int{}
	p.ColonizingFleetID = ""
	p.ColonizationStart = nil
	p.ColonizationEnd = nil
	m.empires.credit(empireID, refund)
	return nil
}

func (m *mockPlanetRepo) SetSpecialization(_ context.Context, planetID, empireID string, newType economy.PlanetType, cost economy.Resources) error {
	p, ok := m.planets[planetID]
	if !ok || p.EmpireID != empireID || p.Status != "active" {
		return fmt.Errorf("planet not an active colony: %w", repository.ErrStateConflict)
	}
	if err := m.empires.spend(empireID, cost); err != nil {
		return err
	}
	p.Type = newType
	return nil
}

func (m *mockPlanetRepo) AddBuildings(_ context.Context, planetID, empireID string, btype economy.BuildingType, count, cap int, cost economy.Resources) (*model.Planet, error) {
	p, ok := m.planets[planetID]
	if !ok || p.EmpireID != empireID {
		return nil, fmt.Errorf("planet not owned: %w", repository.ErrStateConflict)
	}
	if p.Status != "active" {
		return nil, fmt.Errorf("planet not an active colony: %w", repository.ErrStateConflict)
	}
	if p.Buildings[btype]+count > cap {
		return nil, fmt.Errorf("building cap exceeded: %w", repository.ErrStateConflict)
	}
	if err := m.empires.spend(empireID, cost); err != nil {
		return nil, err
	}
	p.Buildings[btype] += count
	return copyPlanet(p), nil
}

// mockFleetRepo implements repository.FleetRepository.
type mockFleetRepo struct {
	fleets  map[string]*model.Fleet
	order   []string
	seq     int
	empires *mockEmpireRepo
}

func newMockFleetRepo(empires *mockEmpireRepo) *mockFleetRepo {
	return &mockFleetRepo{fleets: make(map[string]*model.Fleet), empires: empires}
}

func copyFleet(f *model.Fleet) *model.Fleet {
	cp := *f
	cp.Composition = f.Composition.Clone()
	return &cp
}

// add seeds a fleet directly, assigning an id when absent.
func (m *mockFleetRepo) add(f model.Fleet) *model.Fleet {
	if f.ID == "" {
		m.seq++
		f.ID = fmt.Sprintf("fleet-%d", m.seq)
	}
	if f.Status == "" {
		f.Status = "active"
	}
	cp := f
	m.fleets[cp.ID] = &cp
	m.order = append(m.order, cp.ID)
	return copyFleet(&cp)
}

func (m *mockFleetRepo) CreateWithCost(_ context.Context, fleet *model.Fleet, cost economy.Resources) (*model.Fleet, error) {
	if err := m.empires.spend(fleet.EmpireID, cost); err != nil {
		return nil, err
	}
	m.seq++
	f := &model.Fleet{
		ID:          fmt.Sprintf("fleet-%d", m.seq),
		EmpireID:    fleet.EmpireID,
		Name:        fleet.Name,
		Sector:      fleet.Sector,
		Status:      "active",
		Composition: fleet.Composition.Clone(),
		Morale:      50,
		CreatedAt:   time.Now(),
	}
	m.fleets[f.ID] = f
	m.order = append(m.order, f.ID)
	return copyFleet(f), nil
}

func (m *mockFleetRepo) FindByID(_ context.Context, id string) (*model.Fleet, error) {
	f, ok := m.fleets[id]
	if !ok {
		return nil, nil
	}
	return copyFleet(f), nil
}

func (m *mockFleetRepo) ListByEmpire(_ context.Context, empireID string) ([]model.Fleet, error) {
	var result []model.Fleet
	for _, id := range m.order {
		if f := m.fleets[id]; f.EmpireID == empireID && f.Status != "destroyed" {
			result = append(result, *copyFleet(f))
		}
	}
	return result, nil
}

func (m *mockFleetRepo) CountByEmpire(_ context.Context, empireID string) (int, error) {
	count := 0
	for _, f := range m.fleets {
		if f.EmpireID == empireID && f.Status != "destroyed" {
			count++
		}
	}
	return count, nil
}

func (m *mockFleetRepo) PurchaseComposition(_ context.Context, fleetID, empireID string, netCost economy.Resources, comp combat.Composition) error {
	f, ok := m.fleets[fleetID]
	if !ok || f.EmpireID != empireID || f.Status != "active" {
		return fmt.Errorf("fleet not active: %w", repository.ErrStateConflict)
	}
	if err := m.empires.spend(empireID, netCost); err != nil {
		return err
	}
	f.Composition = comp.Clone()
	return nil
}

func (m *mockFleetRepo) SetMovement(_ context.Context, id, destination string, arrival time.Time) error {
	f, ok := m.fleets[id]
	if !ok || f.Status != "active" {
		return fmt.Errorf("fleet not active: %w", repository.ErrStateConflict)
	}
	f.Status = "moving"
	f.DestinationSector = destination
	at := arrival
	f.ArrivalTime = &at
	return nil
}

func (m *mockFleetRepo) ArriveDueFleets(_ context.Context, now time.Time) (int, error) {
	count := 0
	for _, f := range m.fleets {
		if f.Status != "moving" || f.ArrivalTime == nil || f.ArrivalTime.After(now) {
			continue
		}
		f.Sector = f.DestinationSector
		f.Status = "active"
		f.DestinationSector = ""
		f.ArrivalTime = nil
		count++
	}
	return count, nil
}

func (m *mockFleetRepo) SetStatus(_ context.Context, id, status string) error {
	if f, ok := m.fleets[id]; ok {
		f.Status = status
	}
	return nil
}

// mockBattleRepo implements repository.BattleRepository over the fleet mock.
type mockBattleRepo struct {
	battles map[string]*model.Battle
	order   []string
	seq     int
	fleets  *mockFleetRepo
}

func newMockBattleRepo(fleets *mockFleetRepo) *mockBattleRepo {
	return &mockBattleRepo{battles: make(map[string]*model.Battle), fleets: fleets}
}

func (m *mockBattleRepo) store(b *model.Battle) *model.Battle {
	if b.ID == "" {
		m.seq++
		b.ID = fmt.Sprintf("battle-%d", m.seq)
		b.CreatedAt = time.Now()
		m.order = append(m.order, b.ID)
	}
	cp := *b
	m.battles[cp.ID] = &cp
	return &cp
}

func (m *mockBattleRepo) writeFleet(f *model.Fleet) {
	if stored, ok := m.fleets.fleets[f.ID]; ok {
		*stored = *copyFleet(f)
	}
}

func (m *mockBattleRepo) ExecuteCombat(_ context.Context, attackerFleetID, defenderFleetID string, fight repository.CombatTx) (*model.Battle, error) {
	attacker, ok := m.fleets.fleets[attackerFleetID]
	if !ok {
		return nil, fmt.Errorf("fleet not found: %w", repository.ErrStateConflict)
	}
	defender, ok := m.fleets.fleets[defenderFleetID]
	if !ok {
		return nil, fmt.Errorf("fleet not found: %w", repository.ErrStateConflict)
	}
	battle, ua, ud, err := fight(*copyFleet(attacker), *copyFleet(defender))
	if err != nil {
		return nil, err
	}
	m.writeFleet(ua)
	m.writeFleet(ud)
	return m.store(battle), nil
}

func (m *mockBattleRepo) CreatePending(_ context.Context, b *model.Battle) (*model.Battle, error) {
	for _, fleetID := range []string{b.AttackerFleetID, b.DefenderFleetID} {
		f, ok := m.fleets.fleets[fleetID]
		if !ok || f.Status != "active" {
			return nil, fmt.Errorf("fleet %s not active: %w", fleetID, repository.ErrStateConflict)
		}
	}
	m.fleets.fleets[b.AttackerFleetID].Status = "in_combat"
	m.fleets.fleets[b.DefenderFleetID].Status = "in_combat"
	cp := *b
	cp.Status = "pending"
	return m.store(&cp), nil
}

func (m *mockBattleRepo) ResolvePending(_ context.Context, battleID string, fight repository.PendingCombatTx) (*model.Battle, error) {
	b, ok := m.battles[battleID]
	if !ok {
		return nil, fmt.Errorf("battle not found: %w", repository.ErrStateConflict)
	}
	if b.Status != "pending" {
		return nil, fmt.Errorf("battle already %s: %w", b.Status, repository.ErrStateConflict)
	}
	attacker, ok := m.fleets.fleets[b.AttackerFleetID]
	if !ok {
		return nil, fmt.Errorf("fleet not found: %w", repository.ErrStateConflict)
	}
	defender, ok := m.fleets.fleets[b.DefenderFleetID]
	if !ok {
		return nil, fmt.Errorf("fleet not found: %w", repository.ErrStateConflict)
	}
	resolved, ua, ud, err := fight(*b, *copyFleet(attacker), *copyFleet(defender))
	if err != nil {
		return nil, err
	}
	m.writeFleet(ua)
	m.writeFleet(ud)
	return m.store(resolved), nil
}

func (m *mockBattleRepo) FindByID(_ context.Context, id string) (*model.Battle, error) {
	b, ok := m.battles[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (m *mockBattleRepo) ListByEmpire(_ context.Context, empireID string) ([]model.Battle, error) {
	var result []model.Battle
	for i := len(m.order) - 1; i >= 0; i-- {
		b := m.battles[m.order[i]]
		if b.AttackerEmpire == empireID || b.DefenderEmpire == empireID {
			result = append(result, *b)
		}
	}
	return result, nil
}

func (m *mockBattleRepo) ListPending(_ context.Context) ([]model.Battle, error) {
	var result []model.Battle
	for _, id := range m.order {
		if b := m.battles[id]; b.Status == "pending" {
			result = append(result, *b)
		}
	}
	return result, nil
}

// mockDiplomacyRepo implements repository.DiplomacyRepository.
type mockDiplomacyRepo struct {
	relations  map[string]*model.DiplomaticRelation
	proposals  map[string]*model.DiplomaticProposal
	porder     []string
	agreements []*model.Agreement
	relSeq     int
	propSeq    int
	agrSeq     int
}

func newMockDiplomacyRepo() *mockDiplomacyRepo {
	return &mockDiplomacyRepo{
		relations: make(map[string]*model.DiplomaticRelation),
		proposals: make(map[string]*model.DiplomaticProposal),
	}
}

func pairKey(a, b string) string {
	ea, eb := diplomacy.CanonicalPair(a, b)
	return ea + "|" + eb
}

func (m *mockDiplomacyRepo) EnsureRelation(_ context.Context, a, b string) (*model.DiplomaticRelation, error) {
	key := pairKey(a, b)
	if rel, ok := m.relations[key]; ok {
		cp := *rel
		return &cp, nil
	}
	ea, eb := diplomacy.CanonicalPair(a, b)
	m.relSeq++
	rel := &model.DiplomaticRelation{
		ID:        fmt.Sprintf("rel-%d", m.relSeq),
		EmpireA:   ea,
		EmpireB:   eb,
		CreatedAt: time.Now(),
	}
	m.relations[key] = rel
	cp := *rel
	return &cp, nil
}

func (m *mockDiplomacyRepo) GetRelation(_ context.Context, a, b string) (*model.DiplomaticRelation, error) {
	rel, ok := m.relations[pairKey(a, b)]
	if !ok {
		return nil, nil
	}
	cp := *rel
	return &cp, nil
}

func (m *mockDiplomacyRepo) ListRelationsFor(_ context.Context, empireID string) ([]model.DiplomaticRelation, error) {
	var result []model.DiplomaticRelation
	for _, rel := range m.relations {
		if rel.EmpireA == empireID || rel.EmpireB == empireID {
			result = append(result, *rel)
		}
	}
	return result, nil
}

func (m *mockDiplomacyRepo) AdjustTrust(ctx context.Context, a, b string, delta int) (int, error) {
	if _, err := m.EnsureRelation(ctx, a, b); err != nil {
		return 0, err
	}
	rel := m.relations[pairKey(a, b)]
	rel.TrustLevel = diplomacy.ClampTrust(rel.TrustLevel + delta)
	return rel.TrustLevel, nil
}

func (m *mockDiplomacyRepo) CreateProposal(_ context.Context, p *model.DiplomaticProposal) (*model.DiplomaticProposal, error) {
	for _, existing := range m.proposals {
		samePair := (existing.InitiatorID == p.InitiatorID && existing.TargetID == p.TargetID) ||
			(existing.InitiatorID == p.TargetID && existing.TargetID == p.InitiatorID)
		if samePair && existing.Type == p.Type && existing.Status == "pending" {
			return nil, fmt.Errorf("pending %s proposal already exists: %w", p.Type, repository.ErrStateConflict)
		}
	}
	m.propSeq++
	cp := *p
	cp.ID = fmt.Sprintf("prop-%d", m.propSeq)
	cp.Status = "pending"
	cp.CreatedAt = time.Now()
	m.proposals[cp.ID] = &cp
	m.porder = append(m.porder, cp.ID)
	out := cp
	return &out, nil
}

func (m *mockDiplomacyRepo) FindProposal(_ context.Context, id string) (*model.DiplomaticProposal, error) {
	p, ok := m.proposals[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *mockDiplomacyRepo) ListProposalsFor(_ context.Context, empireID string) ([]model.DiplomaticProposal, error) {
	var result []model.DiplomaticProposal
	for _, id := range m.porder {
		p := m.proposals[id]
		if p.Status == "pending" && (p.InitiatorID == empireID || p.TargetID == empireID) {
			result = append(result, *p)
		}
	}
	return result, nil
}

// transition mirrors the repo guard: only pending proposals move, and an
// overdue one expires instead.
func (m *mockDiplomacyRepo) transition(id, status string) (*model.DiplomaticProposal, error) {
	p, ok := m.proposals[id]
	if !ok || p.Status != "pending" {
		return nil, fmt.Errorf("proposal not pending: %w", repository.ErrStateConflict)
	}
	if !p.ExpiresAt.After(time.Now()) {
		p.Status = "expired"
		return nil, fmt.Errorf("proposal not pending: %w", repository.ErrStateConflict)
	}
	now := time.Now()
	p.Status = status
	p.RespondedAt = &now
	return p, nil
}

func (m *mockDiplomacyRepo) addAgreement(a *model.Agreement) *model.Agreement {
	ea, eb := diplomacy.CanonicalPair(a.EmpireA, a.EmpireB)
	m.agrSeq++
	cp := *a
	cp.ID = fmt.Sprintf("agr-%d", m.agrSeq)
	cp.EmpireA = ea
	cp.EmpireB = eb
	cp.CreatedAt = time.Now()
	m.agreements = append(m.agreements, &cp)
	out := cp
	return &out
}

func (m *mockDiplomacyRepo) AcceptProposal(ctx context.Context, id string, agreement *model.Agreement, trustDelta int) (*model.Agreement, error) {
	p, err := m.transition(id, "accepted")
	if err != nil {
		return nil, err
	}
	created := m.addAgreement(agreement)
	if _, err := m.AdjustTrust(ctx, p.InitiatorID, p.TargetID, trustDelta); err != nil {
		return nil, err
	}
	return created, nil
}

func (m *mockDiplomacyRepo) RejectProposal(ctx context.Context, id string, trustDelta int) error {
	p, err := m.transition(id, "rejected")
	if err != nil {
		return err
	}
	_, err = m.AdjustTrust(ctx, p.InitiatorID, p.TargetID, trustDelta)
	return err
}

func (m *mockDiplomacyRepo) CounterProposal(_ context.Context, id string, counterTerms json.RawMessage) error {
	p, ok := m.proposals[id]
	if !ok || p.Status != "pending" || !p.ExpiresAt.After(time.Now()) {
		return fmt.Errorf("proposal not pending: %w", repository.ErrStateConflict)
	}
	now := time.Now()
	p.Status = "countered"
	p.CounterTerms = counterTerms
	p.RespondedAt = &now
	return nil
}

func (m *mockDiplomacyRepo) ListActiveAgreementsBetween(_ context.Context, a, b string) ([]model.Agreement, error) {
	ea, eb := diplomacy.CanonicalPair(a, b)
	now := time.Now()
	var result []model.Agreement
	for _, ag := range m.agreements {
		if ag.EmpireA == ea && ag.EmpireB == eb && ag.Status == "active" && ag.ExpiresAt.After(now) {
			result = append(result, *ag)
		}
	}
	return result, nil
}

func (m *mockDiplomacyRepo) HasActiveAgreement(ctx context.Context, a, b, kind string) (bool, error) {
	agreements, err := m.ListActiveAgreementsBetween(ctx, a, b)
	if err != nil {
		return false, err
	}
	for _, ag := range agreements {
		if ag.Kind == kind {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockDiplomacyRepo) ExpireDue(_ context.Context, now time.Time) (int, error) {
	count := 0
	for _, p := range m.proposals {
		if p.Status == "pending" && !p.ExpiresAt.After(now) {
			p.Status = "expired"
			count++
		}
	}
	for _, ag := range m.agreements {
		if ag.Status == "active" && !ag.ExpiresAt.After(now) {
			ag.Status = "expired"
			count++
		}
	}
	return count, nil
}

// mockTradeRepo implements repository.TradeRouteRepository. Agreements land
// in the diplomacy mock so HasActiveAgreement sees them.
type mockTradeRepo struct {
	routes  map[string]*model.TradeRoute
	order   []string
	seq     int
	empires *mockEmpireRepo
	diplo   *mockDiplomacyRepo
}

func newMockTradeRepo(empires *mockEmpireRepo, diplo *mockDiplomacyRepo) *mockTradeRepo {
	return &mockTradeRepo{routes: make(map[string]*model.TradeRoute), empires: empires, diplo: diplo}
}

func (m *mockTradeRepo) Establish(_ context.Context, agreement *model.Agreement, route *model.TradeRoute, costEach economy.Resources) (*model.TradeRoute, error) {
	ea, eb := diplomacy.CanonicalPair(route.EmpireA, route.EmpireB)
	givesA, givesB := route.GivesA, route.GivesB
	if ea != route.EmpireA {
		givesA, givesB = givesB, givesA
	}
	for _, empireID := range []string{ea, eb} {
		if err := m.empires.spend(empireID, costEach); err != nil {
			return nil, err
		}
	}
	created := m.diplo.addAgreement(agreement)
	m.seq++
	r := &model.TradeRoute{
		ID:          fmt.Sprintf("route-%d", m.seq),
		AgreementID: created.ID,
		EmpireA:     ea,
		EmpireB:     eb,
		GivesA:      givesA,
		GivesB:      givesB,
		Status:      "active",
		CreatedAt:   time.Now(),
	}
	m.routes[r.ID] = r
	m.order = append(m.order, r.ID)
	cp := *r
	return &cp, nil
}

func (m *mockTradeRepo) FindByID(_ context.Context, id string) (*model.TradeRoute, error) {
	r, ok := m.routes[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *mockTradeRepo) ListForEmpire(_ context.Context, empireID string) ([]model.TradeRoute, error) {
	var result []model.TradeRoute
	for _, id := range m.order {
		if r := m.routes[id]; r.EmpireA == empireID || r.EmpireB == empireID {
			result = append(result, *r)
		}
	}
	return result, nil
}

func (m *mockTradeRepo) ListActive(_ context.Context) ([]model.TradeRoute, error) {
	var result []model.TradeRoute
	for _, id := range m.order {
		if r := m.routes[id]; r.Status == "active" {
			result = append(result, *r)
		}
	}
	return result, nil
}

func (m *mockTradeRepo) Settle(_ context.Context, routeID string, turn int, debitA, creditA, debitB, creditB economy.Resources) (bool, error) {
	r, ok := m.routes[routeID]
	if !ok || r.Status != "active" {
		return false, fmt.Errorf("trade route not active: %w", repository.ErrStateConflict)
	}
	if r.LastSettledTurn >= turn {
		return true, nil
	}
	a := m.empires.empires[r.EmpireA]
	b := m.empires.empires[r.EmpireB]
	if a == nil || b == nil {
		return false, fmt.Errorf("empire missing")
	}
	if !a.Resources.CanAfford(debitA) || !b.Resources.CanAfford(debitB) {
		return false, nil
	}
	a.Resources = a.Resources.Sub(debitA).Add(creditA)
	b.Resources = b.Resources.Sub(debitB).Add(creditB)
	r.LastSettledTurn = turn
	return true, nil
}

func (m *mockTradeRepo) Cancel(_ context.Context, routeID, empireID string) error {
	r, ok := m.routes[routeID]
	if !ok || r.Status != "active" || (r.EmpireA != empireID && r.EmpireB != empireID) {
		return fmt.Errorf("trade route not active for empire: %w", repository.ErrStateConflict)
	}
	r.Status = "cancelled"
	return nil
}

// mockMessageRepo implements repository.MessageRepository.
type mockMessageRepo struct {
	messages []model.Message
	seq      int
}

func newMockMessageRepo() *mockMessageRepo {
	return &mockMessageRepo{}
}

func (m *mockMessageRepo) Create(_ context.Context, senderID, recipientID, body string) (*model.Message, error) {
	m.seq++
	msg := model.Message{
		ID:          fmt.Sprintf("msg-%d", m.seq),
		SenderID:    senderID,
		RecipientID: recipientID,
		Body:        body,
		CreatedAt:   time.Now(),
	}
	m.messages = append(m.messages, msg)
	cp := msg
	return &cp, nil
}

func (m *mockMessageRepo) ListBetween(_ context.Context, a, b string) ([]model.Message, error) {
	var result []model.Message
	for _, msg := range m.messages {
		if (msg.SenderID == a && msg.RecipientID == b) || (msg.SenderID == b && msg.RecipientID == a) {
			result = append(result, msg)
		}
	}
	return result, nil
}

// mockLedgerRepo implements repository.LedgerRepository. The clock is a
// field so cooldown and expiry tests can pin it.
type mockLedgerRepo struct {
	rows         map[string]*model.ActionPointLedger
	reservations map[string]*model.ActionPointReservation
	actions      []model.PlayerAction
	seq          int
	now          func() time.Time
}

func newMockLedgerRepo() *mockLedgerRepo {
	return &mockLedgerRepo{
		rows:         make(map[string]*model.ActionPointLedger),
		reservations: make(map[string]*model.ActionPointReservation),
		now:          time.Now,
	}
}

func ledgerKey(playerID string, turn int) string {
	return fmt.Sprintf("%s|%d", playerID, turn)
}

func (m *mockLedgerRepo) Allocate(_ context.Context, playerID string, turn, points int) (*model.ActionPointLedger, error) {
	key := ledgerKey(playerID, turn)
	if row, ok := m.rows[key]; ok {
		cp := *row
		return &cp, nil
	}
	row := &model.ActionPointLedger{
		PlayerID:        playerID,
		TurnNumber:      turn,
		PointsAvailable: points,
		CreatedAt:       m.now(),
	}
	m.rows[key] = row
	cp := *row
	return &cp, nil
}

func (m *mockLedgerRepo) Get(_ context.Context, playerID string, turn int) (*model.ActionPointLedger, error) {
	row, ok := m.rows[ledgerKey(playerID, turn)]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (m *mockLedgerRepo) reserved(playerID string, turn int) int {
	total := 0
	now := m.now()
	for _, res := range m.reservations {
		if res.PlayerID == playerID && res.TurnNumber == turn && res.ExpiresAt.After(now) {
			total += res.ReservedPoints
		}
	}
	return total
}

func (m *mockLedgerRepo) Available(_ context.Context, playerID string, turn int) (int, error) {
	row, ok := m.rows[ledgerKey(playerID, turn)]
	if !ok {
		return 0, nil
	}
	return row.PointsAvailable - row.PointsUsed - m.reserved(playerID, turn), nil
}

func (m *mockLedgerRepo) Reserve(_ context.Context, playerID string, turn, points int, actionType string, ttl time.Duration) (*model.ActionPointReservation, error) {
	row, ok := m.rows[ledgerKey(playerID, turn)]
	if !ok {
		return nil, &repository.InsufficientPointsError{Required: points, Available: 0}
	}
	available := row.PointsAvailable - row.PointsUsed - m.reserved(playerID, turn)
	if available < points {
		return nil, &repository.InsufficientPointsError{Required: points, Available: available}
	}
	m.seq++
	res := &model.ActionPointReservation{
		ID:             fmt.Sprintf("res-%d", m.seq),
		PlayerID:       playerID,
		TurnNumber:     turn,
		ReservedPoints: points,
		ActionType:     actionType,
		CreatedAt:      m.now(),
		ExpiresAt:      m.now().Add(ttl),
	}
	m.reservations[res.ID] = res
	cp := *res
	return &cp, nil
}

func (m *mockLedgerRepo) Commit(_ context.Context, reservationID string, details json.RawMessage) error {
	res, ok := m.reservations[reservationID]
	if !ok {
		return fmt.Errorf("reservation %s: %w", reservationID, repository.ErrReservationGone)
	}
	if !res.ExpiresAt.After(m.now()) {
		delete(m.reservations, reservationID)
		return fmt.Errorf("reservation %s expired: %w", reservationID, repository.ErrReservationGone)
	}
	m.seq++
	now := m.now()
	m.actions = append(m.actions, model.PlayerAction{
		ID:          fmt.Sprintf("act-%d", m.seq),
		PlayerID:    res.PlayerID,
		TurnNumber:  res.TurnNumber,
		ActionType:  res.ActionType,
		PointsSpent: res.ReservedPoints,
		Details:     details,
		CreatedAt:   now,
	})
	if row, ok := m.rows[ledgerKey(res.PlayerID, res.TurnNumber)]; ok {
		row.PointsUsed += res.ReservedPoints
		row.LastAction = res.ActionType
		row.LastActionTime = &now
	}
	delete(m.reservations, reservationID)
	return nil
}

func (m *mockLedgerRepo) Release(_ context.Context, reservationID string) error {
	delete(m.reservations, reservationID)
	return nil
}

func (m *mockLedgerRepo) SweepExpired(_ context.Context, now time.Time) (int, error) {
	count := 0
	for id, res := range m.reservations {
		if !res.ExpiresAt.After(now) {
			delete(m.reservations, id)
			count++
		}
	}
	return count, nil
}

func (m *mockLedgerRepo) DeleteOlderThan(_ context.Context, beforeTurn int) (int, error) {
	count := 0
	for key, row := range m.rows {
		if row.TurnNumber < beforeTurn {
			delete(m.rows, key)
			count++
		}
	}
	for id, res := range m.reservations {
		if res.TurnNumber < beforeTurn {
			delete(m.reservations, id)
			count++
		}
	}
	return count, nil
}

func (m *mockLedgerRepo) LastActionAt(_ context.Context, playerID string, actionTypes []string) (*time.Time, error) {
	wanted := make(map[string]bool, len(actionTypes))
	for _, t := range actionTypes {
		wanted[t] = true
	}
	var last *time.Time
	for i := range m.actions {
		a := &m.actions[i]
		if a.PlayerID != playerID || !wanted[a.ActionType] {
			continue
		}
		if last == nil || a.CreatedAt.After(*last) {
			t := a.CreatedAt
			last = &t
		}
	}
	return last, nil
}

// mockGameStateRepo implements repository.GameStateRepository.
type mockGameStateRepo struct {
	gs *model.GameState
}

func newMockGameStateRepo() *mockGameStateRepo {
	return &mockGameStateRepo{}
}

func (m *mockGameStateRepo) Get(_ context.Context) (*model.GameState, error) {
	if m.gs == nil {
		return nil, nil
	}
	cp := *m.gs
	return &cp, nil
}

func (m *mockGameStateRepo) Initialize(_ context.Context, turn int, start, end time.Time) (*model.GameState, error) {
	if m.gs != nil {
		return nil, fmt.Errorf("game already initialized: %w", repository.ErrStateConflict)
	}
	m.gs = &model.GameState{TurnNumber: turn, StartTime: start, EndTime: end}
	cp := *m.gs
	return &cp, nil
}

func (m *mockGameStateRepo) BeginProcessing(_ context.Context) (*model.GameState, error) {
	if m.gs == nil {
		return nil, fmt.Errorf("game not initialized: %w", repository.ErrStateConflict)
	}
	if m.gs.IsProcessing {
		return nil, repository.ErrAlreadyProcessing
	}
	m.gs.IsProcessing = true
	cp := *m.gs
	return &cp, nil
}

func (m *mockGameStateRepo) CompleteTurn(_ context.Context, newTurn int, start, end time.Time) (*model.GameState, error) {
	if m.gs == nil {
		return nil, fmt.Errorf("game not initialized")
	}
	m.gs.TurnNumber = newTurn
	m.gs.StartTime = start
	m.gs.EndTime = end
	m.gs.IsProcessing = false
	cp := *m.gs
	return &cp, nil
}

func (m *mockGameStateRepo) ClearProcessing(_ context.Context) error {
	if m.gs != nil {
		m.gs.IsProcessing = false
	}
	return nil
}

// mockSessionStore implements repository.SessionStore.
type mockSessionStore struct {
	sessions map[string]*mockSession
}

type mockSession struct {
	playerID    string
	refreshHash string
	expires     time.Time
}

func newMockSessionStore() *mockSessionStore {
	return &mockSessionStore{sessions: make(map[string]*mockSession)}
}

func (m *mockSessionStore) CreateSession(_ context.Context, sessionID, playerID, refreshHash string, ttl time.Duration) error {
	m.sessions[sessionID] = &mockSession{playerID: playerID, refreshHash: refreshHash, expires: time.Now().Add(ttl)}
	return nil
}

func (m *mockSessionStore) live(sessionID string) *mockSession {
	s, ok := m.sessions[sessionID]
	if !ok || !s.expires.After(time.Now()) {
		return nil
	}
	return s
}

func (m *mockSessionStore) SessionPlayer(_ context.Context, sessionID string) (string, error) {
	if s := m.live(sessionID); s != nil {
		return s.playerID, nil
	}
	return "", nil
}

func (m *mockSessionStore) SessionRefreshHash(_ context.Context, sessionID string) (string, error) {
	if s := m.live(sessionID); s != nil {
		return s.refreshHash, nil
	}
	return "", nil
}

func (m *mockSessionStore) RotateRefresh(_ context.Context, sessionID, refreshHash string, ttl time.Duration) error {
	s := m.live(sessionID)
	if s == nil {
		return fmt.Errorf("session %s gone: %w", sessionID, repository.ErrStateConflict)
	}
	s.refreshHash = refreshHash
	s.expires = time.Now().Add(ttl)
	return nil
}

func (m *mockSessionStore) DeleteSession(_ context.Context, sessionID string) error {
	delete(m.sessions, sessionID)
	return nil
}

func (m *mockSessionStore) RevokeAllSessions(_ context.Context, playerID string) (int, error) {
	count := 0
	for id, s := range m.sessions {
		if s.playerID == playerID {
			delete(m.sessions, id)
			count++
		}
	}
	return count, nil
}

// mockTurnTimer implements repository.TurnTimer.
type mockTurnTimer struct {
	deadline *time.Time
	sets     int
}

func newMockTurnTimer() *mockTurnTimer {
	return &mockTurnTimer{}
}

func (m *mockTurnTimer) SetTurnDeadline(_ context.Context, deadline time.Time) error {
	d := deadline
	m.deadline = &d
	m.sets++
	return nil
}

func (m *mockTurnTimer) ClearTurnDeadline(_ context.Context) error {
	m.deadline = nil
	return nil
}

// mockLeaderboardCache implements repository.LeaderboardCache.
type mockLeaderboardCache struct {
	data          json.RawMessage
	invalidations int
}

func newMockLeaderboardCache() *mockLeaderboardCache {
	return &mockLeaderboardCache{}
}

func (m *mockLeaderboardCache) CachedLeaderboard(_ context.Context) (json.RawMessage, error) {
	if m.data == nil {
		return nil, nil
	}
	return m.data, nil
}

func (m *mockLeaderboardCache) CacheLeaderboard(_ context.Context, data json.RawMessage, _ time.Duration) error {
	m.data = data
	return nil
}

func (m *mockLeaderboardCache) InvalidateLeaderboard(_ context.Context) error {
	m.data = nil
	m.invalidations++
	return nil
}
