package types

import "encoding/json"

// Typed wrappers over the shared Storage, one per record kind.

type CaseStorage struct{ s *Storage }

func NewCaseStorage(s *Storage) *CaseStorage { return &CaseStorage{s: s} }

func (cs *CaseStorage) Put(c *Case) error {
	return cs.s.Put(CaseKey(c.CaseID), c)
}

func (cs *CaseStorage) Get(caseID string) (*Case, bool, error) {
	c := &Case{}
	ok, err := cs.s.Get(CaseKey(caseID), c)
	return c, ok, err
}

// List walks every case; the sweep loop uses it to find deadlines.
func (cs *CaseStorage) List(fn func(*Case) error) error {
	return cs.s.Iterate([]byte("case/"), func(_, v []byte) error {
		c := &Case{}
		if err := json.Unmarshal(v, c); err != nil {
			return err
		}
		return fn(c)
	})
}

type PanelStorage struct{ s *Storage }

func NewPanelStorage(s *Storage) *PanelStorage { return &PanelStorage{s: s} }

// Put refuses to overwrite: a drafted panel is immutable. Redrafts write
// a fresh panel only after the previous one was cleared with Delete.
func (ps *PanelStorage) Put(p *Panel) (bool, error) {
	return ps.s.PutIfAbsent(PanelKey(p.CaseID), p)
}

func (ps *PanelStorage) Get(caseID string) (*Panel, bool, error) {
	p := &Panel{}
	ok, err := ps.s.Get(PanelKey(caseID), p)
	return p, ok, err
}

func (ps *PanelStorage) Delete(caseID string) error {
	return ps.s.Delete(PanelKey(caseID))
}

type SummonsStorage struct{ s *Storage }

func NewSummonsStorage(s *Storage) *SummonsStorage { return &SummonsStorage{s: s} }

func (ss *SummonsStorage) Put(sm *Summons) error {
	return ss.s.Put(SummonsKey(sm.CaseID, sm.JurorID), sm)
}

func (ss *SummonsStorage) Get(caseID, jurorID string) (*Summons, bool, error) {
	sm := &Summons{}
	ok, err := ss.s.Get(SummonsKey(caseID, jurorID), sm)
	return sm, ok, err
}

func (ss *SummonsStorage) ListByCase(caseID string) ([]*Summons, error) {
	var out []*Summons
	err := ss.s.Iterate(SummonsPrefix(caseID), func(_, v []byte) error {
		sm := &Summons{}
		if err := json.Unmarshal(v, sm); err != nil {
			return err
		}
		out = append(out, sm)
		return nil
	})
	return out, err
}

func (ss *SummonsStorage) ListAll(fn func(*Summons) error) error {
	return ss.s.Iterate([]byte("summons/"), func(_, v []byte) error {
		sm := &Summons{}
		if err := json.Unmarshal(v, sm); err != nil {
			return err
		}
		return fn(sm)
	})
}

func (ss *SummonsStorage) DeleteByCase(caseID string) error {
	summonses, err := ss.ListByCase(caseID)
	if err != nil {
		return err
	}
	for _, sm := range summonses {
		if err := ss.s.Delete(SummonsKey(sm.CaseID, sm.JurorID)); err != nil {
			return err
		}
	}
	return nil
}

type ShardStorage struct{ s *Storage }

func NewShardStorage(s *Storage) *ShardStorage { return &ShardStorage{s: s} }

func (hs *ShardStorage) Put(sh *EvidenceShard) error {
	return hs.s.Put(ShardKey(sh.CaseID, sh.JurorID), sh)
}

func (hs *ShardStorage) Get(caseID, jurorID string) (*EvidenceShard, bool, error) {
	sh := &EvidenceShard{}
	ok, err := hs.s.Get(ShardKey(caseID, jurorID), sh)
	return sh, ok, err
}

func (hs *ShardStorage) ListByCase(caseID string) ([]*EvidenceShard, error) {
	var out []*EvidenceShard
	err := hs.s.Iterate(ShardPrefix(caseID), func(_, v []byte) error {
		sh := &EvidenceShard{}
		if err := json.Unmarshal(v, sh); err != nil {
			return err
		}
		out = append(out, sh)
		return nil
	})
	return out, err
}

func (hs *ShardStorage) DeleteByCase(caseID string) error {
	shards, err := hs.ListByCase(caseID)
	if err != nil {
		return err
	}
	for _, sh := range shards {
		if err := hs.s.Delete(ShardKey(sh.CaseID, sh.JurorID)); err != nil {
			return err
		}
	}
	return nil
}

type BallotStorage struct{ s *Storage }

func NewBallotStorage(s *Storage) *BallotStorage { return &BallotStorage{s: s} }

// PutIfAbsent is the single write path for ballots: the conditional
// insert keyed by (case, juror) is what makes double votes impossible.
func (bs *BallotStorage) PutIfAbsent(b *Ballot) (bool, error) {
	return bs.s.PutIfAbsent(BallotKey(b.CaseID, b.JurorID), b)
}

func (bs *BallotStorage) Get(caseID, jurorID string) (*Ballot, bool, error) {
	b := &Ballot{}
	ok, err := bs.s.Get(BallotKey(caseID, jurorID), b)
	return b, ok, err
}

func (bs *BallotStorage) ListByCase(caseID string) ([]*Ballot, error) {
	var out []*Ballot
	err := bs.s.Iterate(BallotPrefix(caseID), func(_, v []byte) error {
		b := &Ballot{}
		if err := json.Unmarshal(v, b); err != nil {
			return err
		}
		out = append(out, b)
		return nil
	})
	return out, err
}

func (bs *BallotStorage) CountByCase(caseID string) (int, error) {
	ballots, err := bs.ListByCase(caseID)
	return len(ballots), err
}

func (bs *BallotStorage) DeleteByCase(caseID string) error {
	ballots, err := bs.ListByCase(caseID)
	if err != nil {
		return err
	}
	for _, b := range ballots {
		if err := bs.s.Delete(BallotKey(b.CaseID, b.JurorID)); err != nil {
			return err
		}
	}
	return nil
}

type VerdictStorage struct{ s *Storage }

func NewVerdictStorage(s *Storage) *VerdictStorage { return &VerdictStorage{s: s} }

// Put is write-once: a finalized manifest is immutable.
func (vs *VerdictStorage) Put(m *VerdictManifest) (bool, error) {
	return vs.s.PutIfAbsent(VerdictKey(m.CaseID), m)
}

func (vs *VerdictStorage) Get(caseID string) (*VerdictManifest, bool, error) {
	m := &VerdictManifest{}
	ok, err := vs.s.Get(VerdictKey(caseID), m)
	return m, ok, err
}

type SettlementStorage struct{ s *Storage }

func NewSettlementStorage(s *Storage) *SettlementStorage { return &SettlementStorage{s: s} }

func (st *SettlementStorage) Put(r *SettlementRecord) (bool, error) {
	return st.s.PutIfAbsent(SettlementKey(r.CaseID), r)
}

func (st *SettlementStorage) Get(caseID string) (*SettlementRecord, bool, error) {
	r := &SettlementRecord{}
	ok, err := st.s.Get(SettlementKey(caseID), r)
	return r, ok, err
}
