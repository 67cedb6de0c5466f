package segment

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

func TestSegment_FiveWellFormedQuestions(t *testing.T) {
	res := New(3, 30).Run(fiveQuestions)

	assert.Equal(t, "number-dot", res.Pattern)
	require.Len(t, res.Candidates, 5)
	assert.Zero(t, res.DiscardedShort)
	assert.Zero(t, res.DiscardedOptions)

	first := res.Candidates[0]
	assert.Equal(t, 1, first.Number)
	assert.True(t, strings.HasPrefix(first.Stem, "Paciente de 45 anos"))
	assert.True(t, strings.HasSuffix(first.Stem, "Qual o diagnóstico mais provável?"))
	assert.NotContains(t, first.Stem, "\n")
	assert.Equal(t, "Infarto agudo do miocárdio", first.Options[0])
	assert.Equal(t, "Pneumotórax hipertensivo", first.Options[3])
	assert.Empty(t, first.Options[4])
	assert.Equal(t, SourceName, first.Source)

	last := res.Candidates[4]
	assert.Equal(t, 5, last.Number)
	assert.Equal(t, "Urocultura", last.Options[4])
	assert.Equal(t, "A", last.CorrectOption)
}

func TestSegment_QuestaoMarkersAndInlineOptions(t *testing.T) {
	text := `
Questão 1
Qual a principal causa de hipotireoidismo em áreas com iodo suficiente?
(A) Tireoidite de Hashimoto (B) Deficiência de iodo (C) Tireoidectomia prévia (D) Amiodarona
Questão 2
Qual o agente etiológico mais comum da pneumonia adquirida na comunidade?
(A) Streptococcus pneumoniae (B) Haemophilus influenzae (C) Mycoplasma pneumoniae (D) Legionella
Questão 3
Qual o tratamento de primeira linha para a crise de ausência típica na infância?
(A) Etossuximida (B) Carbamazepina (C) Fenitoína (D) Fenobarbital (E) Topiramato
Resposta correta: (A)
`
	res := New(3, 30).Run(text)
	assert.Equal(t, "marker", res.Pattern)
	require.Len(t, res.Candidates, 3)
	assert.Equal(t, "Tireoidite de Hashimoto", res.Candidates[0].Options[0])
	assert.Equal(t, "Amiodarona", res.Candidates[0].Options[3])
	assert.Equal(t, "Topiramato", res.Candidates[2].Options[4])
	assert.Equal(t, "A", res.Candidates[2].CorrectOption)
}

func TestSegment_LetterPeriodOptions(t *testing.T) {
	var sb strings.Builder
	for i := 1; i <= 3; i++ {
		sb.WriteString(strings.Repeat(" ", 2))
		sb.WriteString(string(rune('0' + i)))
		sb.WriteString(") Paciente com quadro clínico descrito no enunciado longo o bastante.\n")
		sb.WriteString("a. Primeira alternativa\nb. Segunda alternativa\nc. Terceira alternativa\nd. Quarta alternativa\n")
	}
	res := New(3, 30).Run(sb.String())
	assert.Equal(t, "number-paren", res.Pattern)
	require.Len(t, res.Candidates, 3)
	assert.Equal(t, "Quarta alternativa", res.Candidates[2].Options[3])
}

func TestSegment_TooFewQuestionBoundaries(t *testing.T) {
	text := "1. Apenas uma questão aqui com texto suficiente para o enunciado.\nA) a\nB) b\nC) c\nD) d\n"
	assert.Empty(t, New(3, 30).Segment(text))
}

func TestSegment_EmptyText(t *testing.T) {
	assert.Empty(t, New(3, 30).Segment("   \n\t"))
}

func TestSegment_DiscardsShortAndUnderOptionedBlocks(t *testing.T) {
	text := `1. Curta.
A) a
B) b
C) c
D) d
2. Enunciado suficientemente longo mas com apenas três alternativas listadas.
A) Primeira
B) Segunda
C) Terceira
3. Enunciado suficientemente longo com as quatro alternativas obrigatórias.
A) Primeira
B) Segunda
C) Terceira
D) Quarta
`
	res := New(3, 30).Run(text)
	assert.Equal(t, 3, res.Blocks)
	assert.Equal(t, 1, res.DiscardedShort)
	assert.Equal(t, 1, res.DiscardedOptions)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, 3, res.Candidates[0].Number)
}

func TestSegment_SkipsOutOfOrderLetters(t *testing.T) {
	text := `1. Considere as afirmativas abaixo sobre o item
B) fora de ordem no enunciado
e responda a alternativa correta sobre o tema.
A) Um
B) Dois
C) Três
D) Quatro
2. Segunda questão com enunciado longo o bastante para passar.
A) Um
B) Dois
C) Três
D) Quatro
3. Terceira questão com enunciado longo o bastante para passar.
A) Um
B) Dois
C) Três
D) Quatro
`
	res := New(3, 30).Run(text)
	require.Len(t, res.Candidates, 3)
	assert.Contains(t, res.Candidates[0].Stem, "B) fora de ordem")
	assert.Equal(t, "Dois", res.Candidates[0].Options[1])
}

func TestSegment_LowerCaseListInStemKept(t *testing.T) {
	text := `1. Sobre a sepse, considere:
a) lactato elevado indica hipoperfusão
b) hemoculturas antes do antibiótico
c) reposição volêmica inicial de 30 mL/kg
d) noradrenalina é o vasopressor de escolha
Assinale a alternativa correta.
A) Apenas a e b
B) Apenas c
C) Apenas a, b e d
D) Todas
2. Segunda questão com enunciado longo o bastante para passar.
A) Um
B) Dois
C) Três
D) Quatro
3. Terceira questão com enunciado longo o bastante para passar.
a) Um
b) Dois
c) Três
d) Quatro
`
	res := New(3, 30).Run(text)
	require.Len(t, res.Candidates, 3)

	first := res.Candidates[0]
	assert.Contains(t, first.Stem, "a) lactato elevado")
	assert.Contains(t, first.Stem, "d) noradrenalina")
	assert.Contains(t, first.Stem, "Assinale a alternativa correta.")
	assert.Equal(t, "Apenas a e b", first.Options[0])
	assert.Equal(t, "Todas", first.Options[3])

	// lower-case alternatives still work when there is no upper-case run
	assert.Equal(t, "Terceira questão com enunciado longo o bastante para passar.", res.Candidates[2].Stem)
	assert.Equal(t, "Quatro", res.Candidates[2].Options[3])
}

func TestNew_Defaults(t *testing.T) {
	s := New(0, -1)
	assert.Equal(t, 3, s.MinQuestions)
	assert.Equal(t, 30, s.MinStemLength)
}
