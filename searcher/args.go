package searcher

// Hyperparameters for MCTS

const DefaultIterations = 1000

const DefaultTemperatureMoves = 10 // Moves sampled by visit count before play turns greedy

// Rewards are from the perspective of the player who moved into a node
const Win = 1.0
const Loss = -Win
const Draw = 0.0

// DrawEpsilon replaces an exact-zero backup so drawn lines still register as visited value
const DrawEpsilon = 1e-6

// NoMove is returned when the position has no legal column
const NoMove = -1
