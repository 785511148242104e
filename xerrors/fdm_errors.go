package xerrors

var (
	// ErrInvalidArgument 非法参数 (网格点数、区间、模型参数等).
	ErrInvalidArgument = New(ErrInvalidArg, 400101, "invalid argument", "", nil)
	// ErrDimensionMismatch 网格、算子或数组维度不一致.
	ErrDimensionMismatch = New(ErrInvalidArg, 400102, "dimension mismatch", "", nil)
	// ErrNotSquare 相关系数矩阵不是方阵.
	ErrNotSquare = New(ErrInvalidArg, 400103, "matrix must be square", "", nil)
	// ErrNotPositiveSemiDefinite 相关系数矩阵不是半正定矩阵.
	ErrNotPositiveSemiDefinite = New(ErrInvalidArg, 400104, "matrix is not positive semi-definite", "", nil)
	// ErrInvalidOptionType 无效的期权类型.
	ErrInvalidOptionType = New(ErrInvalidArg, 400105, "invalid option type", "supported types: call, put", nil)

	// ErrUnsupportedExercise 引擎不支持该行权方式.
	ErrUnsupportedExercise = New(ErrUnsupported, 422101, "unsupported exercise", "", nil)
	// ErrInvalidProcess 随机过程类型与引擎不匹配.
	ErrInvalidProcess = New(ErrUnsupported, 422102, "invalid process", "", nil)

	// ErrSingularSystem 三对角系统主元为零.
	ErrSingularSystem = New(ErrNumerical, 500101, "singular system", "", nil)
	// ErrNonFinite 回滚过程中出现 NaN 或 Inf.
	ErrNonFinite = New(ErrNumerical, 500102, "non-finite value", "", nil)

	// ErrDeadline 求解超时或被取消.
	ErrDeadline = New(ErrDeadlineExceeded, 504101, "calculation cancelled", "", nil)
)
