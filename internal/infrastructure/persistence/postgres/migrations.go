// Package postgres implements PostgreSQL persistence for the assessment engine.
package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE PROGRESS RECORDS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create progress records table
-- Version: 001
-- One row per (student, lesson topic, period sequence). Rows are created
-- by schedule materialization and mutated only by linking a submission
-- or marking the period missed. Both transitions are conditional writes.

CREATE TABLE IF NOT EXISTS progress_records (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    student_id UUID NOT NULL,
    lesson_topic_id UUID NOT NULL,
    subject_id UUID NOT NULL,
    subject_name VARCHAR(255) NOT NULL DEFAULT '',
    period_sequence INTEGER NOT NULL,
    total_periods INTEGER NOT NULL DEFAULT 1,
    scheduled_date DATE NOT NULL,
    category VARCHAR(20) NOT NULL,
    window_start TIMESTAMP WITH TIME ZONE NOT NULL,
    window_end TIMESTAMP WITH TIME ZONE NOT NULL,
    grace_end TIMESTAMP WITH TIME ZONE NOT NULL,
    terminal VARCHAR(20) NOT NULL DEFAULT 'NONE',
    linked_submission_id UUID,
    completed_at TIMESTAMP WITH TIME ZONE,
    incomplete_reason VARCHAR(40),
    auto_marked_incomplete_at TIMESTAMP WITH TIME ZONE,
    score DECIMAL(5,2),
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    -- One record per period of a topic for a student.
    UNIQUE(student_id, lesson_topic_id, period_sequence),

    -- A record is never both completed and missed.
    CONSTRAINT completed_xor_missed CHECK (
        linked_submission_id IS NULL OR incomplete_reason IS NULL
    ),
    CONSTRAINT valid_terminal CHECK (terminal IN ('NONE', 'COMPLETED', 'MISSED')),
    CONSTRAINT valid_category CHECK (category IN ('SCHOOL', 'HOME', 'ASPIRANT', 'INDIVIDUAL')),
    CONSTRAINT valid_incomplete_reason CHECK (
        incomplete_reason IS NULL
        OR incomplete_reason IN ('MISSED_GRACE_PERIOD', 'MANUALLY_EXPIRED')
    ),
    CONSTRAINT valid_period_sequence CHECK (period_sequence >= 1),
    CONSTRAINT valid_window CHECK (window_start < window_end AND window_end <= grace_end)
);

CREATE INDEX IF NOT EXISTS idx_progress_student ON progress_records(student_id);
CREATE INDEX IF NOT EXISTS idx_progress_student_topic ON progress_records(student_id, lesson_topic_id, period_sequence);
CREATE INDEX IF NOT EXISTS idx_progress_student_date ON progress_records(student_id, scheduled_date, period_sequence);

-- A submission links to at most one record.
CREATE UNIQUE INDEX IF NOT EXISTS idx_progress_linked_submission
    ON progress_records(linked_submission_id) WHERE linked_submission_id IS NOT NULL;

-- Sweep candidates: open records whose grace period has lapsed.
CREATE INDEX IF NOT EXISTS idx_progress_sweep
    ON progress_records(grace_end)
    WHERE terminal = 'NONE' AND linked_submission_id IS NULL AND incomplete_reason IS NULL;

-- Unlinked records per student for the submission linker.
CREATE INDEX IF NOT EXISTS idx_progress_unlinked
    ON progress_records(student_id, scheduled_date)
    WHERE terminal = 'NONE' AND linked_submission_id IS NULL AND incomplete_reason IS NULL;

-- Updated_at trigger function for automatic timestamp updates
CREATE OR REPLACE FUNCTION update_updated_at_column()
RETURNS TRIGGER AS $$
BEGIN
    NEW.updated_at = NOW();
    RETURN NEW;
END;
$$ language 'plpgsql';

DROP TRIGGER IF EXISTS update_progress_records_updated_at ON progress_records;
CREATE TRIGGER update_progress_records_updated_at
    BEFORE UPDATE ON progress_records
    FOR EACH ROW
    EXECUTE FUNCTION update_updated_at_column();
`

const migration001Down = `
DROP TRIGGER IF EXISTS update_progress_records_updated_at ON progress_records;
DROP FUNCTION IF EXISTS update_updated_at_column();
DROP TABLE IF EXISTS progress_records;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE NOTIFICATIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create notification journal
-- Version: 002
-- Delivery log for student/teacher notifications. Best-effort: a failed
-- delivery never rolls back a progress transition, so the journal is
-- append-mostly and queried for rate limiting.

CREATE TABLE IF NOT EXISTS notifications (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    type VARCHAR(50) NOT NULL,
    role VARCHAR(20) NOT NULL,
    recipient_id UUID NOT NULL,
    student_id UUID NOT NULL,
    subject_id UUID,
    subject_name VARCHAR(255) NOT NULL DEFAULT '',
    title VARCHAR(255) NOT NULL DEFAULT '',
    body TEXT NOT NULL,
    priority SMALLINT NOT NULL DEFAULT 1,
    status VARCHAR(20) NOT NULL DEFAULT 'pending',
    attempts INTEGER NOT NULL DEFAULT 0,
    last_error TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    delivered_at TIMESTAMP WITH TIME ZONE,

    CONSTRAINT valid_notification_type CHECK (
        type IN ('assessment_expired_student', 'assessment_expired_teacher', 'topic_missing')
    ),
    CONSTRAINT valid_role CHECK (role IN ('student', 'teacher')),
    CONSTRAINT valid_notification_status CHECK (
        status IN ('pending', 'sending', 'delivered', 'failed', 'skipped')
    )
);

CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient_id, type, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_notifications_student ON notifications(student_id);
CREATE INDEX IF NOT EXISTS idx_notifications_created ON notifications(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_notifications_pending ON notifications(status) WHERE status = 'pending';
`

const migration002Down = `
DROP TABLE IF EXISTS notifications;
`
