package mount

import (
	"github.com/w1xm/astroid_interface/astroid"
	"github.com/w1xm/astroid_interface/sky"
)

// Calibration maps raw step counts to sky coordinates. It is anchored at the
// last sync; the controller has no absolute position sensor.
type Calibration struct {
	SyncStepHA  float64
	SyncCoordHA float64
	SyncStepDE  float64
	SyncCoordDE float64
}

// Reset anchors the current step counts at hour angle 0, declination 0. This
// is the state of a fresh session, before any sync.
func (c *Calibration) Reset(status astroid.Status, lst float64, g Geometry) {
	c.Sync(0, 0, status, lst, g)
}

// Sync anchors the mapping so that status corresponds to (ra, de) at sidereal time lst.
func (c *Calibration) Sync(ra, de float64, status astroid.Status, lst float64, g Geometry) {
	*c = Calibration{
		SyncStepHA:  float64(status.StepRA) * g.raSign(),
		SyncCoordHA: lst - ra,
		SyncStepDE:  float64(status.StepDE) * g.deSign(),
		SyncCoordDE: de,
	}
}

// Position converts a status report into right ascension and declination.
func (c Calibration) Position(status astroid.Status, lst float64, side PierSide, g Geometry) (ra, de float64) {
	ha := (float64(status.StepRA)*g.raSign()-c.SyncStepHA)/g.StepsPerTurn*24 + c.SyncCoordHA
	ra = sky.Mod24(lst - ha)
	de = sky.Mod360((float64(status.StepDE)*g.deSign()-c.SyncStepDE)/g.StepsPerTurn*360*side.sign() + c.SyncCoordDE)
	return ra, de
}

// Flip re-expresses the offsets for the other pier side. The position
// reported afterwards is the same point on the sky, seen through the pole.
func (c *Calibration) Flip() {
	c.SyncCoordHA = sky.Mod24(c.SyncCoordHA + 12)
	c.SyncCoordDE = 180 - c.SyncCoordDE
}
