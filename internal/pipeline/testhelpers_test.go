package pipeline

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/qbank-cli/internal/config"
	"github.com/sells-group/qbank-cli/internal/model"
	"github.com/sells-group/qbank-cli/internal/segment"
	"github.com/sells-group/qbank-cli/internal/store"
	"github.com/sells-group/qbank-cli/internal/structure"
)

const fiveQuestions = `HOSPITAL DAS CLÍNICAS - PROCESSO SELETIVO 2023

1. Paciente de 45 anos, sexo masculino, apresenta dor torácica em aperto há duas horas,
irradiada para o membro superior esquerdo. Qual o diagnóstico mais provável?
A) Infarto agudo do miocárdio
B) Pericardite aguda
C) Dissecção de aorta
D) Pneumotórax hipertensivo

2. Criança de 3 anos é trazida ao pronto-socorro com febre alta e rigidez de nuca.
Qual exame deve ser realizado primeiro?
A) Tomografia de crânio
B) Punção lombar
C) Hemocultura isolada
D) Eletroencefalograma

3. Gestante de 32 semanas apresenta pressão arterial de 160x110 mmHg e cefaleia.
Qual a conduta inicial?
A) Sulfato de magnésio
B) Alta com retorno ambulatorial
C) Parto cesáreo imediato sem estabilização
D) Observação sem medicação

4. Homem de 60 anos, tabagista, apresenta hemoptise e emagrecimento de 10 kg em três meses.
Qual o próximo passo na investigação?
A) Tomografia de tórax
B) Espirometria
C) Teste ergométrico
D) Ecocardiograma transtorácico

5. Mulher de 25 anos apresenta poliúria, polidipsia e perda de peso há um mês.
Qual o exame diagnóstico?
A) Glicemia de jejum
B) Hemograma completo
C) Ultrassonografia abdominal
D) Dosagem de TSH
E) Urocultura
Gabarito: A
`

func testConfig() *config.Config {
	return &config.Config{
		Quality: config.QualityConfig{MinStemLength: 30, SimilarityRatio: 0.8, SimilarityMinLen: 10, DefaultAnswer: "A"},
		Audit:   config.AuditConfig{BatchSize: 3, AutoFix: true, MaxRepairAttempts: 3},
	}
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "qbank.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func regexChain() structure.Strategy {
	return structure.NewChain(structure.NewRegexStrategy(segment.New(3, 30)))
}

func candidate(n int, stem string, options ...string) model.CandidateQuestion {
	c := model.CandidateQuestion{Number: n, Stem: stem, Source: "stub"}
	copy(c.Options[:], options)
	return c
}

// stubStrategy returns a canned result.
type stubStrategy struct {
	name       string
	candidates []model.CandidateQuestion
	failed     int
	err        error
	available  bool
}

func (s *stubStrategy) Name() string {
	return s.name
}

func (s *stubStrategy) Available(_ structure.Input) bool {
	return s.available
}

func (s *stubStrategy) Structure(_ context.Context, _ structure.Input) (*structure.Result, error) {
	return &structure.Result{Strategy: s.name, Candidates: s.candidates, FailedChunks: s.failed}, s.err
}

// fakeRepairer answers each call with the next scripted response.
type fakeRepairer struct {
	mu        sync.Mutex
	responses []repairResponse
	calls     [][]structure.RepairItem
}

type repairResponse struct {
	fixes map[int]model.QuestionPatch
	err   error
}

func (f *fakeRepairer) Repair(_ context.Context, items []structure.RepairItem) (*structure.RepairResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, items)
	if len(f.responses) == 0 {
		return &structure.RepairResult{Fixes: map[int]model.QuestionPatch{}}, nil
	}
	r := f.responses[0]
	f.responses = f.responses[1:]
	if r.err != nil {
		return nil, r.err
	}
	return &structure.RepairResult{Fixes: r.fixes, Usage: model.TokenUsage{InputTokens: 10, OutputTokens: 5}}, nil
}

func ptr(s string) *string { return &s }
