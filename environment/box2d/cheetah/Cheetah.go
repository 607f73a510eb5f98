// Package cheetah implements a planar half cheetah on the Box2D
// physics engine. The body of the cheetah can be swapped between
// named morphologies while training.
package cheetah

import (
	"fmt"
	"math"

	"github.com/ByteArena/box2d"
	"github.com/samuelfneumann/anchorppo/environment"
	ts "github.com/samuelfneumann/anchorppo/timestep"
	"github.com/samuelfneumann/anchorppo/utils/floatutils"
	"gonum.org/v1/gonum/mat"
)

const (
	Gravity float64 = -9.81

	// Physics
	PhysicsDt          float64 = 0.01
	FrameSkip          int     = 5
	VelocityIterations int     = 8
	PositionIterations int     = 3
	MotorSpeed         float64 = 10.0 // rad/s at full action

	// Reward
	ForwardRewardWeight float64 = 1.0
	CtrlCostWeight      float64 = 0.1

	// Spaces
	ActionDims      int     = 6
	ObservationDims int     = 17
	MinAction       float64 = -1.0
	MaxAction       float64 = 1.0

	// Starts
	ResetNoise float64 = 0.1
	Clearance  float64 = 0.05

	GroundStart float64 = -20.0
	GroundEnd   float64 = 10000.0

	// Collision categories
	groundCategory = 0x0001
	bodyCategory   = 0x0002

	// Observation indices
	heightIndex int = 0
	angleIndex  int = 1

	// Torso linear velocity (2), torso and segment angular velocity (7)
	startDims int = 2 + 1 + ActionDims
)

// Config configures a Cheetah
type Config struct {
	EpisodeLength int
	Discount      float64

	// AssetDir holds <id>.json morphology descriptions used in
	// addition to the built-in morphologies
	AssetDir string

	// FlipLimit ends episodes with a terminal state when the torso
	// angle leaves [-FlipLimit, FlipLimit]. Zero disables the check.
	FlipLimit float64
}

// Cheetah is a half cheetah running on flat ground. Actions are the
// normalized torques of the back thigh, shin, and foot followed by
// those of the front thigh, shin, and foot.
//
// Observations are the torso height and angle, the six joint angles,
// the torso linear and angular velocities, then the six joint speeds.
type Cheetah struct {
	*Run
	world  box2d.B2World
	ground *box2d.B2Body

	morph    Morphology
	assetDir string

	torso    *box2d.B2Body
	segments []*box2d.B2Body
	joints   []*box2d.B2RevoluteJoint

	discount    float64
	currentStep ts.TimeStep
}

// New returns a new Cheetah using the morphology with the given id as
// well as the first TimeStep of the environment.
func New(morphology string, c Config, seed uint64) (*Cheetah,
	ts.TimeStep, error) {
	m, err := LoadMorphology(c.AssetDir, morphology)
	if err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("new: %w", err)
	}

	task, err := NewRun(c.EpisodeLength, c.FlipLimit, ResetNoise, seed)
	if err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("new: could not create "+
			"task: %v", err)
	}

	ch := &Cheetah{
		Run:      task,
		world:    box2d.MakeB2World(box2d.B2Vec2{X: 0.0, Y: Gravity}),
		morph:    m,
		assetDir: c.AssetDir,
		discount: c.Discount,
	}
	ch.createGround()

	step, err := ch.reset(false)
	if err != nil {
		return nil, ts.TimeStep{}, fmt.Errorf("new: %v", err)
	}

	return ch, step, nil
}

// createGround adds the static ground to the world
func (c *Cheetah) createGround() {
	groundDef := box2d.NewB2BodyDef()
	groundDef.Type = 0 // Static body
	c.ground = c.world.CreateBody(groundDef)

	groundShape := box2d.NewB2EdgeShape()
	groundShape.Set(box2d.MakeB2Vec2(GroundStart, 0.0),
		box2d.MakeB2Vec2(GroundEnd, 0.0))

	groundFix := box2d.MakeB2FixtureDef()
	groundFix.Shape = groundShape
	groundFix.Friction = 1.0
	filter := box2d.MakeB2Filter()
	filter.CategoryBits = groundCategory
	filter.MaskBits = bodyCategory
	groundFix.Filter = filter

	c.ground.CreateFixtureFromDef(&groundFix)
}

// destroy removes the cheetah's bodies from the world. Joints are
// destroyed along with their bodies.
func (c *Cheetah) destroy() {
	if c.torso == nil {
		return
	}
	for _, segment := range c.segments {
		c.world.DestroyBody(segment)
	}
	c.world.DestroyBody(c.torso)

	c.torso = nil
	c.segments = nil
	c.joints = nil
}

// createBox creates a dynamic box body centered at (x, y)
func (c *Cheetah) createBox(x, y, halfWidth, halfHeight,
	density float64) *box2d.B2Body {
	bodyDef := box2d.MakeB2BodyDef()
	bodyDef.Type = 2 // Dynamic body
	bodyDef.Position = box2d.MakeB2Vec2(x, y)
	bodyDef.Angle = 0.0
	bodyDef.AllowSleep = false
	body := c.world.CreateBody(&bodyDef)

	shape := box2d.NewB2PolygonShape()
	shape.SetAsBox(halfWidth, halfHeight)

	fix := box2d.MakeB2FixtureDef()
	fix.Shape = shape
	fix.Density = density
	fix.Friction = c.morph.Friction
	fix.Restitution = 0.0
	filter := box2d.MakeB2Filter()
	filter.CategoryBits = bodyCategory
	filter.MaskBits = groundCategory
	fix.Filter = filter

	body.CreateFixtureFromDef(&fix)
	return body
}

// attach connects child to parent with a motorised revolute joint at
// the world point anchor. Both bodies must be unrotated.
func (c *Cheetah) attach(parent, child *box2d.B2Body, anchor box2d.B2Vec2,
	seg Segment) *box2d.B2RevoluteJoint {
	parentPos := parent.GetPosition()
	childPos := child.GetPosition()

	rjd := box2d.MakeB2RevoluteJointDef()
	rjd.BodyA = parent
	rjd.BodyB = child
	rjd.LocalAnchorA = box2d.MakeB2Vec2(anchor.X-parentPos.X,
		anchor.Y-parentPos.Y)
	rjd.LocalAnchorB = box2d.MakeB2Vec2(anchor.X-childPos.X,
		anchor.Y-childPos.Y)
	rjd.EnableMotor = true
	rjd.EnableLimit = true
	rjd.MaxMotorTorque = 0.0
	rjd.MotorSpeed = 0.0
	rjd.LowerAngle = seg.Lower
	rjd.UpperAngle = seg.Upper

	return c.world.CreateJoint(&rjd).(*box2d.B2RevoluteJoint)
}

// build creates the bodies and joints of the current morphology with
// the torso centered at x. Legs hang straight down from the ends of
// the torso.
func (c *Cheetah) build(x float64) {
	back, front := c.morph.legLength()
	y := math.Max(back, front) + Clearance

	torso := c.morph.Torso
	c.torso = c.createBox(x, y, torso.Length/2, torso.Radius, torso.Density)

	c.segments = make([]*box2d.B2Body, 0, ActionDims)
	c.joints = make([]*box2d.B2RevoluteJoint, 0, ActionDims)

	hips := []float64{x - torso.Length/2, x + torso.Length/2}
	legs := [][3]Segment{c.morph.Back, c.morph.Front}
	for leg := range legs {
		parent := c.torso
		anchor := box2d.MakeB2Vec2(hips[leg], y)

		for _, seg := range legs[leg] {
			centre := anchor.Y - seg.Length/2
			body := c.createBox(anchor.X, centre, seg.Radius, seg.Length/2,
				seg.Density)

			joint := c.attach(parent, body, anchor, seg)
			c.segments = append(c.segments, body)
			c.joints = append(c.joints, joint)

			parent = body
			anchor = box2d.MakeB2Vec2(anchor.X, anchor.Y-seg.Length)
		}
	}
}

// perturb applies a sampled starting velocity perturbation
func (c *Cheetah) perturb() {
	start := c.Start()
	if start.Len() != startDims {
		panic(fmt.Sprintf("perturb: invalid start state dimensions "+
			"\n\twant(%v) \n\thave(%v)", startDims, start.Len()))
	}

	c.torso.SetLinearVelocity(box2d.MakeB2Vec2(start.AtVec(0),
		start.AtVec(1)))
	c.torso.SetAngularVelocity(start.AtVec(2))
	for i, segment := range c.segments {
		segment.SetAngularVelocity(start.AtVec(3 + i))
	}
}

// reset rebuilds the cheetah and begins a new episode
func (c *Cheetah) reset(implicit bool) (ts.TimeStep, error) {
	c.destroy()
	c.build(0.0)
	c.perturb()

	obs := c.observe()
	if floatutils.HasNaNOrInf(obs.RawVector().Data) {
		return ts.TimeStep{}, fmt.Errorf("reset: non-finite starting state")
	}

	step := ts.New(ts.First, 0, c.discount, obs, 0)
	step.Info = ts.Info{Morphology: c.morph.Name, ImplicitReset: implicit}
	c.currentStep = step

	return step, nil
}

// Reset resets the environment and returns the first TimeStep of the
// new episode
func (c *Cheetah) Reset() (ts.TimeStep, error) {
	return c.reset(false)
}

// SetMorphology swaps the body of the cheetah. Box2D joints cannot be
// moved once created, so the body is rebuilt at the origin and a new
// episode begins.
func (c *Cheetah) SetMorphology(id string) error {
	m, err := LoadMorphology(c.assetDir, id)
	if err != nil {
		return fmt.Errorf("setMorphology: %w", err)
	}

	previous := c.morph
	c.morph = m
	if _, err := c.reset(true); err != nil {
		c.morph = previous
		return fmt.Errorf("setMorphology: %v", err)
	}

	return nil
}

// Morphology returns the id of the current morphology
func (c *Cheetah) Morphology() string {
	return c.morph.Name
}

// Step takes one environmental step given some action
func (c *Cheetah) Step(a *mat.VecDense) (ts.TimeStep, bool, error) {
	if a.Len() != ActionDims {
		return ts.TimeStep{}, true, fmt.Errorf("step: invalid number of "+
			"action dimensions \n\twant(%v) \n\thave(%v)", ActionDims,
			a.Len())
	}

	action := mat.NewVecDense(ActionDims, nil)
	for i := 0; i < ActionDims; i++ {
		action.SetVec(i, floatutils.Clip(a.AtVec(i), MinAction, MaxAction))
	}

	// Motors track the maximum speed with a torque proportional to the
	// action magnitude
	for i, joint := range c.joints {
		value := action.AtVec(i)
		joint.SetMotorSpeed(MotorSpeed * floatutils.Sign(value))
		joint.SetMaxMotorTorque(c.morph.segment(i).MaxTorque *
			math.Abs(value))
	}

	xBefore := c.torso.GetPosition().X
	for i := 0; i < FrameSkip; i++ {
		c.world.Step(PhysicsDt, VelocityIterations, PositionIterations)
	}
	xAfter := c.torso.GetPosition().X

	obs := c.observe()
	if floatutils.HasNaNOrInf(obs.RawVector().Data) {
		return ts.TimeStep{}, true, fmt.Errorf("step: simulation became " +
			"unstable")
	}

	reward := c.GetReward(xBefore, xAfter, c.Dt(), action)
	t := ts.New(ts.Mid, reward, c.discount, obs, c.currentStep.Number+1)
	t.Info = ts.Info{Morphology: c.morph.Name}
	last := c.End(&t)
	c.currentStep = t

	return t, last, nil
}

// observe returns the current observation
func (c *Cheetah) observe() *mat.VecDense {
	obs := make([]float64, 0, ObservationDims)

	pos := c.torso.GetPosition()
	angle := c.torso.GetAngle()
	obs = append(obs, pos.Y, angle)
	for _, joint := range c.joints {
		obs = append(obs, joint.GetJointAngle())
	}

	vel := c.torso.GetLinearVelocity()
	obs = append(obs, vel.X, vel.Y, c.torso.GetAngularVelocity())
	for _, joint := range c.joints {
		obs = append(obs, joint.GetJointSpeed())
	}

	return mat.NewVecDense(ObservationDims, obs)
}

// Dt returns the simulated time between two environmental steps
func (c *Cheetah) Dt() float64 {
	return PhysicsDt * float64(FrameSkip)
}

// Position returns the x position of the torso
func (c *Cheetah) Position() float64 {
	return c.torso.GetPosition().X
}

// CurrentTimeStep returns the current TimeStep of the environment
func (c *Cheetah) CurrentTimeStep() ts.TimeStep {
	return c.currentStep
}

// ObservationSpec returns the observation specification of the
// environment
func (c *Cheetah) ObservationSpec() environment.Spec {
	return environment.NewUnboundedSpec(ObservationDims,
		environment.Observation)
}

// ActionSpec returns the action specification of the environment
func (c *Cheetah) ActionSpec() environment.Spec {
	low := make([]float64, ActionDims)
	high := make([]float64, ActionDims)
	for i := range low {
		low[i] = MinAction
		high[i] = MaxAction
	}

	return environment.NewSpec(mat.NewVecDense(ActionDims, nil),
		environment.Action, mat.NewVecDense(ActionDims, low),
		mat.NewVecDense(ActionDims, high), environment.Continuous)
}

// DiscountSpec returns the discount specification of the environment
func (c *Cheetah) DiscountSpec() environment.Spec {
	return environment.NewDiscountSpec(c.discount)
}

// Close releases the bodies of the environment
func (c *Cheetah) Close() error {
	c.destroy()
	if c.ground != nil {
		c.world.DestroyBody(c.ground)
		c.ground = nil
	}
	return nil
}
