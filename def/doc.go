/*
	Cohort is focused on getting one decomposable computation done by a
	crowd of participants nobody vouches for: volunteers join a project,
	receive jobs, and report results whenever they get around to it, or
	never.

	This package holds everything that crosses a boundary: the Job that
	travels to a participant and back, the ready message a participant
	announces itself with, the options a project is created from, the
	status snapshots broadcast to everyone watching, the records persisted
	between coordinator restarts, and the Message envelope all of the
	above travel in.

	### Projects

	A project is either a plain map/reduce project or an "ANN" project.

	A plain project cuts its data set into one job per element.  Each job
	names the map transform to run on its element; when every job has
	reported, the project folds the results in job id order with its
	reduce transform.  Transforms are referred to by name and must be
	registered with both the coordinator and the participants; no code
	ever travels over the wire.

	An ANN project trains one neural network in rounds.  Every round
	(called an epoch) shuffles the training set, cuts it into partitions,
	and sends one job per partition.  All jobs of an epoch carry the same
	network and trainer options.  When every partition has come back
	trained, the partial networks are reconciled into one and the next
	epoch starts from that.

	### Identity

	A job is identified by its project id and its job id.  Job ids are
	dense, starting from zero, and stable once issued; for ANN projects
	they are only unique within one epoch, so results also carry the
	epoch they were trained in.

	Delivery is at-least-once: a job may be handed out again if its first
	worker vanishes or takes too long, so the same result may arrive twice.
	The second arrival is ignored.
*/
package def
