package game

//anima:component
type Spinner struct {
	Speed float64
	angle float64
}

func (s *Spinner) Update(dt float64) {
	s.angle += s.Speed * dt
}
