package main

import (
	"path/filepath"
	"testing"

	"github.com/sells-group/qbank-cli/internal/config"
)

const fiveQuestions = `UNIFESP - PROVA DE RESIDÊNCIA 2022

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
`

// useTestConfig installs a regex-only sqlite config for the test.
func useTestConfig(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	prev := cfg
	cfg = &config.Config{
		Store:     config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(dir, "qbank.db")},
		OCR:       config.OCRConfig{Provider: "native"},
		Segment:   config.SegmentConfig{MinQuestions: 3},
		Structure: config.StructureConfig{Strategies: []string{"regex"}, MaxConcurrentCalls: 1},
		Quality: config.QualityConfig{
			MinStemLength:    30,
			SimilarityRatio:  0.8,
			SimilarityMinLen: 10,
			DefaultAnswer:    "A",
		},
		Audit:  config.AuditConfig{BatchSize: 3, AutoFix: true, MaxRepairAttempts: 3},
		Batch:  config.BatchConfig{MaxConcurrentDocuments: 2, LockPath: filepath.Join(dir, "batch.lock")},
		Server: config.ServerConfig{Port: 8080},
	}
	t.Cleanup(func() { cfg = prev })
}
