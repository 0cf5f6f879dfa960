package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// ScreeningModulePrefix 筛选模块
	ScreeningModulePrefix = "screening"

	// EntityRunStatus 运行状态实体
	EntityRunStatus = "status"
	// EntityRunResults 排序结果集实体
	EntityRunResults = "results"
	// EntityCancelFlag 取消标记实体
	EntityCancelFlag = "cancel"
	// EntityLock 分布式锁实体
	EntityLock = "lock"

	// KeyRunStatus 运行状态缓存 (STRING)
	// 格式: app:screening:status:{runUUID}
	KeyRunStatus = AppPrefix + ":" + ScreeningModulePrefix + ":" + EntityRunStatus + ":%s"

	// KeyRunResults 运行的排序结果集缓存 (ZSET，score为逆序名次以保持排序稳定，member为结果JSON)
	// 格式: app:screening:results:{runUUID}
	KeyRunResults = AppPrefix + ":" + ScreeningModulePrefix + ":" + EntityRunResults + ":%s"

	// KeyRunCancelFlag 运行取消标记 (STRING)
	// 格式: app:screening:cancel:{runUUID}
	KeyRunCancelFlag = AppPrefix + ":" + ScreeningModulePrefix + ":" + EntityCancelFlag + ":%s"

	// KeyRerunLock 重跑分布式锁，防止同一运行并发重置 (STRING)
	// 格式: app:screening:lock:{runUUID}
	KeyRerunLock = AppPrefix + ":" + ScreeningModulePrefix + ":" + EntityLock + ":%s"
)
