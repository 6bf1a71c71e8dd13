// internal/domain/classroom/levels.go
package classroom

// CefrLevel is a Common European Framework language level.
type CefrLevel string

const (
	CefrA1 CefrLevel = "A1"
	CefrA2 CefrLevel = "A2"
	CefrB1 CefrLevel = "B1"
	CefrB2 CefrLevel = "B2"
	CefrC1 CefrLevel = "C1"
	CefrC2 CefrLevel = "C2"
)

// CefrLevels lists the levels in ascending order.
var CefrLevels = []CefrLevel{CefrA1, CefrA2, CefrB1, CefrB2, CefrC1, CefrC2}

// SpecialNeed is one of the learning needs a student can be tagged with.
type SpecialNeed string

const (
	NeedADHD       SpecialNeed = "ADHD"
	NeedODD        SpecialNeed = "ODD"
	NeedASD        SpecialNeed = "ASD"
	NeedDepression SpecialNeed = "Depression"
	NeedACEs       SpecialNeed = "ACEs"
	NeedDysgraphia SpecialNeed = "Dysgraphia"
	NeedDyslexia   SpecialNeed = "Dyslexia"
	NeedAnxiety    SpecialNeed = "Anxiety Disorders"
)

var SpecialNeeds = []SpecialNeed{
	NeedADHD, NeedODD, NeedASD, NeedDepression, NeedACEs, NeedDysgraphia, NeedDyslexia, NeedAnxiety,
}
