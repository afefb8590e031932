package domain

// Layer — слой качества данных.
//
// Слои упорядочены: bronze (сырые) → silver (очищенные) → gold (витрины).
type Layer string

const (
	LayerBronze Layer = "bronze"
	LayerSilver Layer = "silver"
	LayerGold   Layer = "gold"
)

// IsValid возвращает true для известных слоёв.
func (l Layer) IsValid() bool {
	switch l {
	case LayerBronze, LayerSilver, LayerGold:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление Layer.
func (l Layer) String() string {
	return string(l)
}

// ParseLayer парсит строку в Layer.
func ParseLayer(s string) (Layer, error) {
	l := Layer(s)
	if !l.IsValid() {
		return "", Invalid("layer", "unknown layer %q (expected bronze, silver or gold)", s)
	}
	return l, nil
}

// Stage — этап pipeline.
//
// Pipeline состоит максимум из двух этапов, выполняемых строго по порядку:
//
//	silver (bronze → silver) → gold (silver → gold)
type Stage string

const (
	StageSilver Stage = "silver"
	StageGold   Stage = "gold"
)

// Stages — этапы в порядке выполнения.
var Stages = []Stage{StageSilver, StageGold}

// Transition возвращает пару слоёв, которую должен соединять mapping этапа.
func (s Stage) Transition() (from, to Layer) {
	switch s {
	case StageSilver:
		return LayerBronze, LayerSilver
	case StageGold:
		return LayerSilver, LayerGold
	default:
		return "", ""
	}
}

// Field возвращает имя поля pipeline, хранящего mapping этапа.
func (s Stage) Field() string {
	return "mapping_" + string(s) + "_id"
}

// IsValid возвращает true для известных этапов.
func (s Stage) IsValid() bool {
	return s == StageSilver || s == StageGold
}
