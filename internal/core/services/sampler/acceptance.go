package sampler

import "math"

// AcceptanceProbability is the Metropolis acceptance probability of moving a
// chain at inverse temperature beta from currentEnergy to newEnergy. Lower
// energy is more probable. An unknown (+Inf) current energy always accepts.
func AcceptanceProbability(beta, currentEnergy, newEnergy float64) float64 {
	if math.IsInf(currentEnergy, 1) {
		return 1
	}
	return clampProbability(math.Exp(beta * (currentEnergy - newEnergy)))
}

// SwapProbability is the replica-exchange acceptance probability for two
// chains at inverse temperatures betaI and betaJ.
func SwapProbability(betaI, betaJ, energyI, energyJ float64) float64 {
	return clampProbability(math.Exp((betaI - betaJ) * (energyI - energyJ)))
}

func clampProbability(p float64) float64 {
	if math.IsNaN(p) {
		return 0
	}
	return math.Min(1, p)
}
