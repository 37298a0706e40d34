package progression

import "risehigh-xp-service/internal/domain"

// Outcome is the result of pushing an XP delta through a level cascade.
type Outcome struct {
	Level int
	XP    int
	// LevelUp is the new level, or nil when the level did not change.
	LevelUp *int
}

// Apply adds delta to xp and levels up for as long as the remainder covers
// the current threshold. A single delta may span several levels.
func Apply(level, xp, delta int, curve Curve) (Outcome, error) {
	if delta < 0 {
		return Outcome{}, domain.ErrNegativeDelta
	}
	if level < 1 {
		level = 1
	}
	if xp < 0 {
		xp = 0
	}

	start := level
	xp += delta
	for xp >= curve.Threshold(level) {
		xp -= curve.Threshold(level)
		level++
	}

	out := Outcome{Level: level, XP: xp}
	if level > start {
		lvl := level
		out.LevelUp = &lvl
	}
	return out, nil
}

// SkillOutcome tags a skill cascade as a newly unlocked skill or progress on
// an existing one.
type SkillOutcome struct {
	Outcome
	Type domain.EventType
}

// Ledger is the working progression state of one pipeline run. Awards for
// the same student accumulate on top of each other; nothing is written
// until the caller collects Changes.
type Ledger struct {
	students map[string]domain.StudentProgression
	skills   map[domain.SkillKey]domain.SkillProgression

	studentOrder []string
	skillOrder   []domain.SkillKey
	touchedStud  map[string]bool
	touchedSkill map[domain.SkillKey]bool
}

// NewLedger seeds a ledger with the stored progressions of the students involved.
func NewLedger(students []domain.StudentProgression, skills []domain.SkillProgression) *Ledger {
	l := &Ledger{
		students:     make(map[string]domain.StudentProgression, len(students)),
		skills:       make(map[domain.SkillKey]domain.SkillProgression, len(skills)),
		touchedStud:  make(map[string]bool),
		touchedSkill: make(map[domain.SkillKey]bool),
	}
	for _, s := range students {
		l.students[s.StudentID] = s
	}
	for _, s := range skills {
		l.skills[s.Key()] = s
	}
	return l
}

// Student returns the current progression of a student, defaulting to level 1.
func (l *Ledger) Student(studentID string) domain.StudentProgression {
	if p, ok := l.students[studentID]; ok {
		return p
	}
	return domain.NewStudentProgression(studentID)
}

// Skill looks up a skill progression; ok is false if the student has never
// been awarded XP in the skill.
func (l *Ledger) Skill(studentID, skillID string) (domain.SkillProgression, bool) {
	p, ok := l.skills[domain.SkillKey{StudentID: studentID, SkillID: skillID}]
	return p, ok
}

// ApplyStudent adds profile XP to a student.
func (l *Ledger) ApplyStudent(studentID string, delta int) (Outcome, error) {
	current := l.Student(studentID)
	out, err := Apply(current.Level, current.XP, delta, ProfileCurve)
	if err != nil {
		return Outcome{}, err
	}
	l.students[studentID] = domain.StudentProgression{StudentID: studentID, Level: out.Level, XP: out.XP}
	if !l.touchedStud[studentID] {
		l.touchedStud[studentID] = true
		l.studentOrder = append(l.studentOrder, studentID)
	}
	return out, nil
}

// ApplySkill adds skill XP, unlocking the skill at level 1 first when the
// student does not have it yet.
func (l *Ledger) ApplySkill(studentID, skillID string, delta int) (SkillOutcome, error) {
	eventType := domain.EventSkillXP
	current, ok := l.Skill(studentID, skillID)
	if !ok {
		eventType = domain.EventNewSkill
		current = domain.SkillProgression{StudentID: studentID, SkillID: skillID, Level: 1, XP: 0}
	}

	out, err := Apply(current.Level, current.XP, delta, SkillCurve)
	if err != nil {
		return SkillOutcome{}, err
	}
	key := current.Key()
	l.skills[key] = domain.SkillProgression{StudentID: studentID, SkillID: skillID, Level: out.Level, XP: out.XP}
	if !l.touchedSkill[key] {
		l.touchedSkill[key] = true
		l.skillOrder = append(l.skillOrder, key)
	}
	return SkillOutcome{Outcome: out, Type: eventType}, nil
}

// Changes returns the progressions modified since the ledger was created,
// in the order they were first touched.
func (l *Ledger) Changes() ([]domain.StudentProgression, []domain.SkillProgression) {
	students := make([]domain.StudentProgression, 0, len(l.studentOrder))
	for _, id := range l.studentOrder {
		students = append(students, l.students[id])
	}
	skills := make([]domain.SkillProgression, 0, len(l.skillOrder))
	for _, key := range l.skillOrder {
		skills = append(skills, l.skills[key])
	}
	return students, skills
}
